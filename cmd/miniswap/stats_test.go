package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"miniSwap/internal/model"
	"miniSwap/internal/session"
	"miniSwap/internal/storage"
	"miniSwap/internal/units"
)

const holder = "0x00000000000000000000000000000000000A11cE"

func cachedMirror() session.Mirror {
	return session.Mirror{
		Account: holder,
		Snapshot: model.PoolSnapshot{
			Caller:       holder,
			Reserve0:     units.FromUint64(100_000_000),
			Reserve1:     units.FromUint64(400_000_000),
			TotalShares:  units.FromUint64(200_000_000),
			CallerShares: units.FromUint64(50_000_000),
			Block:        10,
		},
		Assets: [2]model.AssetHandle{
			{AssetMeta: model.AssetMeta{Address: "0xaa", Decimals: 6, Symbol: "USDC"}, Holder: holder, Balance: units.FromUint64(7), Allowance: units.FromUint64(9)},
			{AssetMeta: model.AssetMeta{Address: "0xbb", Decimals: 6, Symbol: "DAI"}, Holder: holder, Balance: units.FromUint64(7), Allowance: units.FromUint64(9)},
		},
	}
}

func TestMirrorFromStoredKeepsCachedMetadata(t *testing.T) {
	stored := cachedMirror().Snapshot
	stored.Block = 12
	stored.Reserve0 = units.FromUint64(110_000_000)

	got := mirrorFromStored(cachedMirror(), true, stored)

	if got.Snapshot.Block != 12 || got.Snapshot.Reserve0.String() != "110000000" {
		t.Fatalf("stored snapshot not applied: %+v", got.Snapshot)
	}
	if got.Account != holder {
		t.Fatalf("account = %s", got.Account)
	}
	for i, asset := range got.Assets {
		if asset.Decimals != 6 || asset.Symbol == "" {
			t.Fatalf("asset%d metadata lost: %+v", i, asset)
		}
		if asset.Holder != "" || !asset.Balance.IsZero() || !asset.Allowance.IsZero() {
			t.Fatalf("asset%d holder fields from an older block must be dropped: %+v", i, asset)
		}
	}
}

func TestMirrorFromStoredWithoutCache(t *testing.T) {
	got := mirrorFromStored(session.Mirror{}, false, cachedMirror().Snapshot)
	for i, asset := range got.Assets {
		if asset.Decimals != 0 || !strings.Contains(asset.Symbol, "minor units") {
			t.Fatalf("asset%d should print minor units: %+v", i, asset)
		}
	}
}

func TestOfflineStatsReadsCacheFile(t *testing.T) {
	dir := t.TempDir()
	cachePath := filepath.Join(dir, "snapshot.json")
	if err := session.NewCacheFile(cachePath).Save(cachedMirror()); err != nil {
		t.Fatalf("save cache: %v", err)
	}

	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetArgs([]string{"stats", "--offline", "--cache-file", cachePath, "--log-level", "error"})
	if err := root.Execute(); err != nil {
		t.Fatalf("stats --offline: %v", err)
	}

	text := out.String()
	for _, want := range []string{"offline snapshot from cache", "100.000000 USDC", "400.000000 DAI", "25.00%"} {
		if !strings.Contains(text, want) {
			t.Fatalf("output missing %q:\n%s", want, text)
		}
	}
}

func TestOfflineStatsWithoutCacheFails(t *testing.T) {
	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"stats", "--offline", "--cache-file", filepath.Join(t.TempDir(), "missing.json"), "--log-level", "error"})
	if err := root.Execute(); err == nil || !strings.Contains(err.Error(), "no cached snapshot") {
		t.Fatalf("expected missing cache error, got %v", err)
	}
}

func TestHistoryFiltersByAction(t *testing.T) {
	journal := filepath.Join(t.TempDir(), "actions.jsonl")
	err := storage.NewJsonlStorage(journal).PutTransitionBatch(context.Background(), []model.Transition{
		{ActionID: 1, Kind: model.ActionSwap, To: model.StateIdle, At: "2024-01-01T00:00:00Z"},
		{ActionID: 2, Kind: model.ActionGrant, To: model.StateIdle, At: "2024-01-01T00:00:01Z"},
		{ActionID: 1, Kind: model.ActionSwap, From: model.StateIdle, To: model.StateFailed, Error: "reverted", At: "2024-01-01T00:00:02Z"},
	})
	if err != nil {
		t.Fatalf("write journal: %v", err)
	}

	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetArgs([]string{"history", "--journal", journal, "--action", "1", "--log-level", "error"})
	if err := root.Execute(); err != nil {
		t.Fatalf("history: %v", err)
	}

	text := out.String()
	if !strings.Contains(text, "reverted") || strings.Contains(text, string(model.ActionGrant)) {
		t.Fatalf("unexpected history output:\n%s", text)
	}
	if lines := strings.Count(strings.TrimSpace(text), "\n") + 1; lines != 3 {
		t.Fatalf("expected header and two rows, got %d lines:\n%s", lines, text)
	}
}

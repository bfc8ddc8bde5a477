package registry

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gnana997/compreg/pkg/catalog"
	"github.com/gnana997/compreg/pkg/util"
)

func record(path, name string) catalog.ComponentRecord {
	return catalog.ComponentRecord{
		Path:            path,
		Name:            name,
		Category:        catalog.CategoryFromPath(path),
		Exports:         []string{name},
		Props:           []catalog.PropRecord{},
		Description:     "UI " + name + " component",
		LastUpdated:     time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		DetectionMethod: catalog.DetectionSyntaxTree,
	}
}

func docWith(records ...catalog.ComponentRecord) *catalog.RegistryDocument {
	doc := catalog.NewDocument(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	doc.Components = records
	return doc
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return New(Config{
		OutputPath: filepath.Join(t.TempDir(), "public", "component-registry.json"),
		Logger:     util.NopLogger(),
	})
}

func readDisk(t *testing.T, path string) *catalog.RegistryDocument {
	t.Helper()
	doc, err := catalog.LoadFromFile(path)
	require.NoError(t, err)
	return doc
}

func names(doc *catalog.RegistryDocument) []string {
	out := make([]string, 0, len(doc.Components))
	for _, c := range doc.Components {
		out = append(out, c.Name)
	}
	return out
}

func TestBackupPath(t *testing.T) {
	assert.Equal(t, "public/component-registry.backup.json", BackupPath("public/component-registry.json"))
	assert.Equal(t, "out/registry.backup.json", BackupPath("out/registry"))
}

func TestStore_EmptyBeforeScan(t *testing.T) {
	s := newTestStore(t)

	assert.False(t, s.Loaded())
	assert.Nil(t, s.Snapshot())
	assert.Equal(t, 0, s.ComponentCount())

	data, err := s.JSON()
	require.NoError(t, err)
	var doc catalog.RegistryDocument
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Empty(t, doc.Components)

	// Nothing to write yet.
	require.NoError(t, s.Persist(context.Background()))
	_, err = os.Stat(s.OutputPath())
	assert.True(t, os.IsNotExist(err))
}

func TestStore_ReplaceDeduplicates(t *testing.T) {
	s := newTestStore(t)

	first := record("ui/Button.tsx", "Button")
	second := record("ui/Button.tsx", "Button")
	second.Description = "second wins"

	s.Replace(docWith(first, record("ui/Card.tsx", "Card"), second), 0)

	snap := s.Snapshot()
	require.Len(t, snap.Components, 2)
	assert.Equal(t, "second wins", snap.Components[0].Description)
	assert.Empty(t, snap.Validate())
}

func TestStore_MergeReplacesTouchedPaths(t *testing.T) {
	s := newTestStore(t)
	s.Replace(docWith(
		record("ui/Button.tsx", "Button"),
		record("ui/Button.tsx", "IconButton"),
		record("ui/Card.tsx", "Card"),
	), 0)

	res := s.Merge([]catalog.ComponentRecord{record("ui/Button.tsx", "Button")}, []string{"ui/Button.tsx"}, nil)

	assert.Equal(t, 2, res.Removed)
	assert.Equal(t, 1, res.Added)
	assert.Equal(t, 2, res.Total)
	assert.ElementsMatch(t, []string{"Card", "Button"}, names(s.Snapshot()))
}

func TestStore_MergeTouchedPathWithNoRecords(t *testing.T) {
	s := newTestStore(t)
	s.Replace(docWith(record("ui/Button.tsx", "Button"), record("ui/Card.tsx", "Card")), 0)

	res := s.Merge(nil, []string{"ui/Button.tsx"}, nil)

	assert.Equal(t, 1, res.Removed)
	assert.Equal(t, []string{"Card"}, names(s.Snapshot()))
}

func TestStore_RemoveComponentsForPath(t *testing.T) {
	s := newTestStore(t)
	s.Replace(docWith(
		record("ui/Button.tsx", "Button"),
		record("ui/Button.tsx", "IconButton"),
		record("ui/Card.tsx", "Card"),
	), 0)

	assert.Equal(t, 2, s.RemoveComponentsForPath("ui/Button.tsx"))
	assert.Equal(t, 0, s.RemoveComponentsForPath("ui/Missing.tsx"))
	assert.Equal(t, []string{"Card"}, names(s.Snapshot()))
}

func TestStore_RecordsFor(t *testing.T) {
	s := newTestStore(t)
	s.Replace(docWith(record("ui/Button.tsx", "Button"), record("ui/Button.tsx", "IconButton")), 0)

	got, ok := s.RecordsFor("ui/Button.tsx", []string{"IconButton", "Button"})
	require.True(t, ok)
	require.Len(t, got, 2)
	assert.Equal(t, "IconButton", got[0].Name)

	_, ok = s.RecordsFor("ui/Button.tsx", []string{"Button", "Gone"})
	assert.False(t, ok)

	_, ok = s.RecordsFor("ui/Button.tsx", nil)
	assert.False(t, ok)

	// Returned records are copies.
	got[0].Exports[0] = "mutated"
	again, _ := s.RecordsFor("ui/Button.tsx", []string{"IconButton"})
	assert.Equal(t, "IconButton", again[0].Exports[0])
}

func TestStore_PersistAndLoad(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	s.Replace(docWith(record("ui/Button.tsx", "Button")), 0)

	require.NoError(t, s.Persist(ctx))
	onDisk := readDisk(t, s.OutputPath())
	assert.Equal(t, []string{"Button"}, names(onDisk))
	assert.False(t, onDisk.PreservedFromNewer)

	// First write has nothing to back up.
	_, err := os.Stat(s.BackupPath())
	assert.True(t, os.IsNotExist(err))

	reloaded := New(Config{OutputPath: s.OutputPath(), Logger: util.NopLogger()})
	require.NoError(t, reloaded.Load(ctx))
	assert.True(t, reloaded.Loaded())
	assert.Equal(t, []string{"Button"}, names(reloaded.Snapshot()))
}

func TestStore_LoadMissingFile(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Load(context.Background()))
	assert.False(t, s.Loaded())
}

func TestStore_LoadCorruptFile(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, util.WriteFileAtomic(s.OutputPath(), []byte("{broken"), 0644))

	err := s.Load(context.Background())
	require.Error(t, err)
	assert.False(t, s.Loaded())
}

func TestStore_PersistWritesBackup(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	s.Replace(docWith(record("ui/Button.tsx", "Button")), 0)
	require.NoError(t, s.Persist(ctx))

	s.Merge([]catalog.ComponentRecord{record("ui/Card.tsx", "Card")}, []string{"ui/Card.tsx"}, nil)
	require.NoError(t, s.Persist(ctx))

	backup := readDisk(t, s.BackupPath())
	assert.Equal(t, []string{"Button"}, names(backup))
	assert.ElementsMatch(t, []string{"Button", "Card"}, names(readDisk(t, s.OutputPath())))
}

func TestStore_PersistSkipsUnchangedDocument(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	s.Replace(docWith(record("ui/Button.tsx", "Button")), 0)
	require.NoError(t, s.Persist(ctx))
	s.Merge([]catalog.ComponentRecord{record("ui/Card.tsx", "Card")}, []string{"ui/Card.tsx"}, nil)
	require.NoError(t, s.Persist(ctx))
	assert.False(t, s.Dirty())

	// A second write of the same document would overwrite the backup.
	require.NoError(t, s.Persist(ctx))
	assert.Equal(t, []string{"Button"}, names(readDisk(t, s.BackupPath())))

	s.Update(func(doc *catalog.RegistryDocument) { doc.BuildID = "b1" })
	assert.True(t, s.Dirty())
}

func TestStore_MarshalUsesGivenDocument(t *testing.T) {
	s := newTestStore(t)
	s.Replace(docWith(record("ui/Button.tsx", "Button")), 0)
	held := s.Snapshot()
	s.Merge([]catalog.ComponentRecord{record("ui/Card.tsx", "Card")}, []string{"ui/Card.tsx"}, nil)

	data, err := s.Marshal(held)
	require.NoError(t, err)
	doc, err := catalog.LoadFromBytes(data)
	require.NoError(t, err)
	assert.Equal(t, []string{"Button"}, names(doc))
}

func TestStore_NeverShrink(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	s.Replace(docWith(
		record("ui/Button.tsx", "Button"),
		record("ui/Card.tsx", "Card"),
		record("ui/Dialog.tsx", "Dialog"),
	), 0)
	require.NoError(t, s.Persist(ctx))

	// A fresh store that never saw the on-disk document produces a smaller
	// candidate, as an interrupted scan would.
	fresh := New(Config{OutputPath: s.OutputPath(), Logger: util.NopLogger()})
	fresh.Replace(docWith(record("ui/Button.tsx", "Button")), 0)
	require.NoError(t, fresh.Persist(ctx))

	onDisk := readDisk(t, s.OutputPath())
	assert.Len(t, onDisk.Components, 3)
	assert.True(t, onDisk.PreservedFromNewer)
	require.NotNil(t, onDisk.OriginalComponentCount)
	assert.Equal(t, 1, *onDisk.OriginalComponentCount)

	// The live document adopts the preserved list.
	assert.Len(t, fresh.Snapshot().Components, 3)
}

func TestStore_IntentionalRemovalShrinks(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	s.Replace(docWith(
		record("ui/Button.tsx", "Button"),
		record("ui/Card.tsx", "Card"),
	), 0)
	require.NoError(t, s.Persist(ctx))

	require.Equal(t, 1, s.RemoveComponentsForPath("ui/Card.tsx"))
	require.NoError(t, s.Persist(ctx))

	onDisk := readDisk(t, s.OutputPath())
	assert.Equal(t, []string{"Button"}, names(onDisk))
	assert.False(t, onDisk.PreservedFromNewer)
}

func TestStore_MergeShrinkCountsAsIntentional(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	s.Replace(docWith(
		record("ui/Button.tsx", "Button"),
		record("ui/Button.tsx", "IconButton"),
	), 0)
	require.NoError(t, s.Persist(ctx))

	s.Merge([]catalog.ComponentRecord{record("ui/Button.tsx", "Button")}, []string{"ui/Button.tsx"}, nil)
	require.NoError(t, s.Persist(ctx))

	assert.Equal(t, []string{"Button"}, names(readDisk(t, s.OutputPath())))
}

func TestStore_DegradedMergeKeepsNeverShrink(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	s.Replace(docWith(
		record("ui/Multi.tsx", "Alpha"),
		record("ui/Multi.tsx", "Beta"),
		record("ui/Multi.tsx", "Gamma"),
	), 0)
	require.NoError(t, s.Persist(ctx))

	s.Merge([]catalog.ComponentRecord{record("ui/Multi.tsx", "Multi")}, []string{"ui/Multi.tsx"}, []string{"ui/Multi.tsx"})
	require.NoError(t, s.Persist(ctx))

	onDisk := readDisk(t, s.OutputPath())
	assert.Equal(t, []string{"Alpha", "Beta", "Gamma"}, names(onDisk))
	assert.True(t, onDisk.PreservedFromNewer)
}

func TestStore_ReplaceWithIntentionalDrops(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	s.Replace(docWith(
		record("ui/Button.tsx", "Button"),
		record("ui/Card.tsx", "Card"),
	), 0)
	require.NoError(t, s.Persist(ctx))

	s.Replace(docWith(record("ui/Button.tsx", "Button")), 1)
	require.NoError(t, s.Persist(ctx))

	assert.Equal(t, []string{"Button"}, names(readDisk(t, s.OutputPath())))
}

func TestStore_EmptyNeverOverwritesNonEmpty(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	s.Replace(docWith(record("ui/Button.tsx", "Button")), 0)
	require.NoError(t, s.Persist(ctx))

	// Even an intentional removal of every component keeps the artifact.
	s.RemoveComponentsForPath("ui/Button.tsx")
	require.NoError(t, s.Persist(ctx))

	assert.Equal(t, []string{"Button"}, names(readDisk(t, s.OutputPath())))
	snap := s.Snapshot()
	assert.Equal(t, []string{"Button"}, names(snap))
	assert.True(t, snap.PreservedFromNewer)
}

func TestStore_EmptyWrittenWhenNothingOnDisk(t *testing.T) {
	s := newTestStore(t)
	s.Replace(docWith(), 0)

	require.NoError(t, s.Persist(context.Background()))
	assert.Empty(t, readDisk(t, s.OutputPath()).Components)
}

func TestStore_PersistOverwritesCorruptFile(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, util.WriteFileAtomic(s.OutputPath(), []byte("not json"), 0644))

	s.Replace(docWith(record("ui/Button.tsx", "Button")), 0)
	require.NoError(t, s.Persist(context.Background()))

	assert.Equal(t, []string{"Button"}, names(readDisk(t, s.OutputPath())))
}

func TestStore_PersistFailure(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0644))

	s := New(Config{
		OutputPath: filepath.Join(blocker, "registry.json"),
		Logger:     util.NopLogger(),
	})
	s.Replace(docWith(record("ui/Button.tsx", "Button")), 0)

	err := s.Persist(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, catalog.ErrPersistFailure))
}

func TestStore_Minify(t *testing.T) {
	s := New(Config{
		OutputPath: filepath.Join(t.TempDir(), "registry.json"),
		Minify:     true,
		Logger:     util.NopLogger(),
	})
	s.Replace(docWith(record("ui/Button.tsx", "Button")), 0)

	data, err := s.JSON()
	require.NoError(t, err)
	assert.NotContains(t, string(data), "\n")
}

func TestStore_UpdateAndSnapshotIsolation(t *testing.T) {
	s := newTestStore(t)
	s.Replace(docWith(record("ui/Button.tsx", "Button")), 0)

	s.Update(func(doc *catalog.RegistryDocument) {
		doc.CacheHits = 4
		doc.AddWarning("ui/Broken.tsx: parse failure")
	})

	snap := s.Snapshot()
	assert.Equal(t, 4, snap.CacheHits)
	assert.Equal(t, []string{"ui/Broken.tsx: parse failure"}, snap.Warnings)

	snap.Components[0].Name = "Mutated"
	assert.Equal(t, "Button", s.Snapshot().Components[0].Name)
}

func TestStore_ConcurrentReaders(t *testing.T) {
	s := newTestStore(t)
	s.Replace(docWith(record("ui/Button.tsx", "Button")), 0)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = s.Snapshot()
			_, _ = s.JSON()
		}()
		go func() {
			defer wg.Done()
			s.Merge([]catalog.ComponentRecord{record("ui/Card.tsx", "Card")}, []string{"ui/Card.tsx"}, nil)
		}()
	}
	wg.Wait()

	assert.ElementsMatch(t, []string{"Button", "Card"}, names(s.Snapshot()))
}

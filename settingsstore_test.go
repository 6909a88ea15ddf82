package spdymux

import "testing"

func TestSettingsStoreUpdateOnlyPersistsFlaggedEntries(t *testing.T) {
	store := NewStore()
	origin := NewOrigin("https", "example.com", 443)

	store.Update(origin, []SettingIDValue{
		{Flag: FlagSettingPersistValue, ID: SettingInitialWindowSize, Value: 131072},
		{ID: SettingMaxConcurrentStreams, Value: 50}, // not flagged, should be dropped
	})

	got, ok := store.Copy(origin)
	if !ok {
		t.Fatal("expected a persisted entry set for origin")
	}
	if len(got) != 1 {
		t.Fatalf("got %d entries, want 1", len(got))
	}
	entry, ok := got[SettingInitialWindowSize]
	if !ok || entry.Value != 131072 || !entry.Persisted {
		t.Fatalf("unexpected entry: %+v", entry)
	}
	if _, ok := got[SettingMaxConcurrentStreams]; ok {
		t.Fatal("unflagged entry should not have been persisted")
	}
}

func TestSettingsStoreCopyIsIndependent(t *testing.T) {
	store := NewStore()
	origin := NewOrigin("https", "example.com", 443)
	store.Update(origin, []SettingIDValue{
		{Flag: FlagSettingPersistValue, ID: SettingInitialWindowSize, Value: 1},
	})

	got, _ := store.Copy(origin)
	got[SettingInitialWindowSize] = PersistedSetting{Value: 999}

	got2, _ := store.Copy(origin)
	if got2[SettingInitialWindowSize].Value != 1 {
		t.Fatal("mutating a Copy result should not affect the store")
	}
}

func TestSettingsStoreClear(t *testing.T) {
	store := NewStore()
	origin := NewOrigin("https", "example.com", 443)
	store.Update(origin, []SettingIDValue{
		{Flag: FlagSettingPersistValue, ID: SettingInitialWindowSize, Value: 1},
	})

	store.Clear(origin)

	if _, ok := store.Copy(origin); ok {
		t.Fatal("expected no entries after Clear")
	}
}

func TestOriginNormalizesCase(t *testing.T) {
	a := NewOrigin("HTTPS", "Example.COM", 443)
	b := NewOrigin("https", "example.com", 443)
	if a != b {
		t.Fatalf("origins should compare equal after normalization: %+v vs %+v", a, b)
	}
}

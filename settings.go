package spdymux

import "github.com/climber-labs/spdymux/internal/wire"

// SettingID identifies an entry in a SETTINGS frame (SPDY/3.1 section 2.6.4).
type SettingID uint32

// SETTINGS ids (SPDY/3.1 section 2.6.7). The session acts only on
// SettingMaxConcurrentStreams and SettingInitialWindowSize; the others
// are decoded but ignored, matching real-world SPDY deployments that
// only ever negotiate those two.
const (
	SettingUploadBandwidth       SettingID = 1
	SettingDownloadBandwidth     SettingID = 2
	SettingRoundTripTime         SettingID = 3
	SettingMaxConcurrentStreams  SettingID = 4
	SettingCurrentCwnd           SettingID = 5
	SettingDownloadRetransRate   SettingID = 6
	SettingInitialWindowSize     SettingID = 7
	SettingClientCertVectorSize  SettingID = 8
)

// SettingFlag are the per-entry flags carried alongside a setting id.
type SettingFlag uint8

// Per-entry SETTINGS flags.
const (
	FlagSettingPersistValue SettingFlag = 0x1
	FlagSettingPersisted    SettingFlag = 0x2
)

// SettingIDValue is one decoded entry of a SETTINGS frame.
type SettingIDValue struct {
	Flag  SettingFlag
	ID    SettingID
	Value uint32
}

// SettingsFrame is the decoded SETTINGS control frame body: a
// clear-persisted flag plus zero or more id/value entries (SPDY/3.1 section 2.6.4).
type SettingsFrame struct {
	clearPersisted bool
	entries        []SettingIDValue
}

func (s *SettingsFrame) controlType() ControlType { return TypeSettings }

func (s *SettingsFrame) reset() {
	s.clearPersisted = false
	s.entries = s.entries[:0]
}

// ClearPersisted reports whether FLAG_SETTINGS_CLEAR_SETTINGS was set.
func (s *SettingsFrame) ClearPersisted() bool { return s.clearPersisted }

// SetClearPersisted sets FLAG_SETTINGS_CLEAR_SETTINGS.
func (s *SettingsFrame) SetClearPersisted(v bool) { s.clearPersisted = v }

// Entries returns the decoded id/value pairs.
func (s *SettingsFrame) Entries() []SettingIDValue { return s.entries }

// AddEntry appends an entry to encode.
func (s *SettingsFrame) AddEntry(flag SettingFlag, id SettingID, value uint32) {
	s.entries = append(s.entries, SettingIDValue{Flag: flag, ID: id, Value: value})
}

const settingEntrySize = 8 // 1 flag + 3 id + 4 value

func (s *SettingsFrame) deserialize(fh *FrameHeader) error {
	p := fh.payload
	if len(p) < 4 {
		return ErrMissingBytes
	}
	s.clearPersisted = fh.cflags.Has(FlagClearSettings)

	count := wire.Uint32(p[0:4])
	p = p[4:]
	for i := uint32(0); i < count; i++ {
		if len(p) < settingEntrySize {
			return ErrMissingBytes
		}
		flag := SettingFlag(p[0])
		id := SettingID(wire.Uint24(p[1:4]))
		value := wire.Uint32(p[4:8])
		s.entries = append(s.entries, SettingIDValue{Flag: flag, ID: id, Value: value})
		p = p[settingEntrySize:]
	}
	return nil
}

func (s *SettingsFrame) serialize(fh *FrameHeader) {
	flags := ControlFlags(0)
	if s.clearPersisted {
		flags |= FlagClearSettings
	}
	fh.cflags = flags

	buf := make([]byte, 4, 4+len(s.entries)*settingEntrySize)
	wire.PutUint32(buf[0:4], uint32(len(s.entries)))
	for _, e := range s.entries {
		buf = append(buf, byte(e.Flag))
		var idBuf [3]byte
		wire.PutUint24(idBuf[:], uint32(e.ID))
		buf = append(buf, idBuf[:]...)
		buf = wire.AppendUint32(buf, e.Value)
	}
	fh.payload = buf
}

func newSettingsFrame(clearPersisted bool, entries ...SettingIDValue) *FrameHeader {
	fh := AcquireFrameHeader()
	st := settingsPool.Get().(*SettingsFrame)
	st.reset()
	st.SetClearPersisted(clearPersisted)
	st.entries = append(st.entries[:0], entries...)
	fh.SetBody(st)
	return fh
}

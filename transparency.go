package fingerprint

import "fmt"

// Keys of the records emitted through a TransparencyLogger.
const (
	TransparencyQuality    = "quality-verdict"
	TransparencyAlignment  = "alignment"
	TransparencyCandidates = "candidate-scores"
	TransparencyDecision   = "decision"
)

const transparencyMime = "application/cbor"

// TransparencyContents receives intermediate matching data for auditing.
// Accepts is consulted before a record is serialized, so declining a key
// costs nothing.
type TransparencyContents interface {
	Accepts(key string) bool
	Accept(key, mime string, data []byte) error
}

// TransparencyLogger serializes records as CBOR into a TransparencyContents.
// A nil *TransparencyLogger is valid and drops everything.
type TransparencyLogger struct {
	contents TransparencyContents
}

func NewTransparencyLogger(contents TransparencyContents) *TransparencyLogger {
	if contents == nil {
		return nil
	}
	return &TransparencyLogger{contents: contents}
}

func (l *TransparencyLogger) accepts(key string) bool {
	return l != nil && l.contents.Accepts(key)
}

func (l *TransparencyLogger) log(key string, v any) error {
	if !l.accepts(key) {
		return nil
	}
	data, err := cborEnc.Marshal(v)
	if err != nil {
		return fmt.Errorf("transparency %s: %w", key, err)
	}
	if err := l.contents.Accept(key, transparencyMime, data); err != nil {
		return fmt.Errorf("transparency %s: %w", key, err)
	}
	return nil
}

// AlignmentRecord is the payload of a TransparencyAlignment record.
type AlignmentRecord struct {
	PersonID  string    `cbor:"person_id"`
	Score     float64   `cbor:"score"`
	Alignment Alignment `cbor:"alignment"`
}

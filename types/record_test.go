package types

import (
	"testing"
)

func Test_RecordMarshalUnmarshal(t *testing.T) {
	e1 := CommandEvent{
		JobID:      "test-job",
		Shard:      "shard-0001",
		Timestamp:  1700000000.123456,
		DB:         2,
		ClientIP:   "10.0.0.5",
		ClientPort: 54321,
		Command:    "GET",
		Key:        "user:42",
		KeyPattern: "user:42",
	}

	var err error
	var buf []byte
	if buf, err = RecordMarshal(e1); err != nil {
		t.Fatal(err)
	}

	t.Logf("Marshalled: % 02x ", buf)

	var e2 CommandEvent
	if e2, err = RecordUnmarshal(buf); err != nil {
		t.Fatal(err)
	}

	if e1 != e2 {
		t.Fatal("not equal")
	}
}

func Test_RecordUnmarshalInvalid(t *testing.T) {
	for _, buf := range [][]byte{
		nil,
		{0xC4},
		{0x00, 0x00, 0x00, 0x00, 0x00, 0x02, '{', '}'},
		{0xC4, 0x5E, 0x00, 0x00, 0x00, 0xFF, '{', '}'},
	} {
		if _, err := RecordUnmarshal(buf); err != ErrInvalidRecord {
			t.Fatalf("expected ErrInvalidRecord for % 02x, got %v", buf, err)
		}
	}
}

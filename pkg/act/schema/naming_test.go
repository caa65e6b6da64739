package schema

import (
	"testing"

	"github.com/matryer/is"
)

func TestToWire(t *testing.T) {
	is := is.New(t)

	is.Equal(ToWire("id"), "id")
	is.Equal(ToWire("source_object"), "sourceObject")
	is.Equal(ToWire("last_seen_timestamp"), "lastSeenTimestamp")
	is.Equal(ToWire("Source_OBJECT"), "sourceObject")
	is.Equal(ToWire("ipv4_address"), "ipv4Address")
}

func TestToAttr(t *testing.T) {
	is := is.New(t)

	is.Equal(ToAttr("id"), "id")
	is.Equal(ToAttr("sourceObject"), "source_object")
	is.Equal(ToAttr("lastSeenTimestamp"), "last_seen_timestamp")
	is.Equal(ToAttr("already_snake"), "already_snake")
	is.Equal(ToAttr("responseCode"), "response_code")
}

func TestNamesRoundTrip(t *testing.T) {
	is := is.New(t)

	names := []string{
		"a", "id", "value", "source_object", "in_reference_to", "bidirectional_binding",
		"ipv4_address", "object_validator_parameter", "sha256_hash", "a1_b2_c3",
	}

	for _, n := range names {
		is.Equal(ToAttr(ToWire(n)), n) // snake -> camel -> snake must be lossless
	}
}

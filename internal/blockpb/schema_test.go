package blockpb

import (
	"os"
	"regexp"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"
)

var (
	messageRe = regexp.MustCompile(`^message (\w+) \{`)
	fieldRe   = regexp.MustCompile(`^\s+\w+ (\w+) = (\d+);`)
	serviceRe = regexp.MustCompile(`rpc (\w+)\(stream \w+\) returns \(stream \w+\)`)
	packageRe = regexp.MustCompile(`(?m)^package ([\w.]+);`)
)

// protoFields reads block.proto into message -> field -> number.
func protoFields(t *testing.T) (map[string]map[string]protowire.Number, string) {
	t.Helper()
	raw, err := os.ReadFile("block.proto")
	require.NoError(t, err)

	out := make(map[string]map[string]protowire.Number)
	var current string
	for _, line := range regexp.MustCompile(`\r?\n`).Split(string(raw), -1) {
		if m := messageRe.FindStringSubmatch(line); m != nil {
			current = m[1]
			out[current] = make(map[string]protowire.Number)
			continue
		}
		if m := fieldRe.FindStringSubmatch(line); m != nil && current != "" {
			n, err := strconv.Atoi(m[2])
			require.NoError(t, err)
			out[current][m[1]] = protowire.Number(n)
		}
		if line == "}" {
			current = ""
		}
	}
	return out, string(raw)
}

func TestSchema_MatchesEncoder(t *testing.T) {
	fields, raw := protoFields(t)

	assert.Equal(t, map[string]protowire.Number{
		"version": fieldVersion,
		"start":   fieldRequestStart,
		"length":  fieldRequestLength,
	}, fields["FetchRequest"])
	assert.Equal(t, map[string]protowire.Number{
		"version":   fieldVersion,
		"available": fieldResponseAvailable,
		"values":    fieldResponseValues,
		"parity":    fieldResponseParity,
	}, fields["FetchResponse"])

	pkg := packageRe.FindStringSubmatch(raw)
	require.NotNil(t, pkg)
	assert.Equal(t, serviceName, pkg[1]+".BlockService")
	assert.Equal(t, []string{"rpc Fetch(stream FetchRequest) returns (stream FetchResponse)", "Fetch"},
		serviceRe.FindStringSubmatch(raw))
}

package act

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"slices"
	"strings"

	"github.com/mnemonic-no/act-api-go/pkg/act/errors"
)

// Placeholder is the object value marking an unknown object in a fact chain.
const Placeholder string = "*"

// FactChainSeed is the sorted string forms of the facts joined by newlines.
// A chain must contain exactly two known objects.
func FactChainSeed(facts ...*Fact) (string, error) {
	known := 0
	for _, f := range facts {
		for _, name := range []string{"source_object", "destination_object"} {
			if obj := f.GetRef(name); obj != nil && obj.GetString("value") != Placeholder {
				known++
			}
		}
	}

	if known != 2 {
		return "", errors.NewIllegalFactChainError("there should be exactly two known objects in a fact chain, found %d", known)
	}

	lines := make([]string, 0, len(facts))
	for _, f := range facts {
		lines = append(lines, f.String())
	}
	slices.Sort(lines)

	return strings.Join(lines, "\n"), nil
}

// FactChain returns copies of the facts where every placeholder object value
// is replaced by a value derived from the whole chain.
func FactChain(facts ...*Fact) ([]*Fact, error) {
	seed, err := FactChainSeed(facts...)
	if err != nil {
		return nil, err
	}

	sum := sha256.Sum256([]byte(seed))
	value := fmt.Sprintf("[placeholder[%s]]", hex.EncodeToString(sum[:]))

	chain := make([]*Fact, 0, len(facts))
	for _, f := range facts {
		c := f.Clone()
		for _, name := range []string{"source_object", "destination_object"} {
			if obj := c.GetRef(name); obj != nil && obj.GetString("value") == Placeholder {
				obj.Set("value", value)
			}
		}
		chain = append(chain, c)
	}

	return chain, nil
}

package codegen

import (
	"path/filepath"
	"regexp"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

var safeName = regexp.MustCompile(`^[a-z0-9_-]{1,50}$`)

func TestSanitizeTargetProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("result is a safe file name", prop.ForAll(
		func(target string) bool {
			return safeName.MatchString(SanitizeTarget(target))
		},
		gen.AnyString(),
	))

	properties.Property("parser path stays in the output directory", prop.ForAll(
		func(target string) bool {
			w := NewWriter("custom_parsers")
			return filepath.Dir(w.Path(target)) == w.Dir()
		},
		gen.AnyString(),
	))

	properties.Property("lowercase alphanumeric targets are unchanged", prop.ForAll(
		func(target string) bool {
			return SanitizeTarget(target) == target
		},
		gen.RegexMatch(`^[a-z0-9]{1,50}$`),
	))

	properties.TestingRun(t)
}

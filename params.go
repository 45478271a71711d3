package main

import (
	"os"
	"regexp"
	"strings"

	"github.com/dpc-contract-tests/bulkcheck/config"
	"github.com/dpc-contract-tests/bulkcheck/framework"

	"github.com/alessio/shellescape"
	"github.com/spf13/pflag"
)

// commandParams are the flags that are not part of config.Config.
type commandParams struct {
	configFile string
	filters    framework.RegexFilters
}

func (c *commandParams) addFlags(fs *pflag.FlagSet) {
	config.AddFlags(fs)
	fs.StringVar(&c.configFile, "config", "", "YAML, JSON or TOML file with settings")
	fs.Var(&c.filters.MustMatch, "run", "regex pattern(s) to select tests to run")
	fs.Var(&c.filters.MustNotMatch, "skip", "regex pattern(s) to select tests not to run")
}

type commandBuilder []string

func (b *commandBuilder) add(args ...string) {
	for _, a := range args {
		*b = append(*b, shellescape.Quote(a))
	}
}

func (b commandBuilder) String() string {
	return strings.Join(b, " ")
}

// rerunTests returns the failed tests and every test they depend on, directly or not, in the
// order they ran.
func rerunTests(results framework.Results) []string {
	requires := make(map[string][]string, len(results.Tests))
	for _, r := range results.Tests {
		requires[r.TestID.String()] = r.Requires
	}
	needed := make(map[string]bool)
	var visit func(name string)
	visit = func(name string) {
		if needed[name] {
			return
		}
		needed[name] = true
		for _, r := range requires[name] {
			visit(r)
		}
	}
	for _, f := range results.Failures {
		visit(f.TestID.String())
	}

	var names []string
	for _, r := range results.Tests {
		if needed[r.TestID.String()] {
			names = append(names, r.TestID.String())
		}
	}
	return names
}

// rerunCommand builds a command line that runs the failed tests again with debug output.
func rerunCommand(cfg *config.Config, params commandParams, results framework.Results) string {
	var b commandBuilder
	b.add(os.Args[0], "--"+config.KeyURL, cfg.URL)
	if params.configFile != "" {
		b.add("--config", params.configFile)
	}
	patterns := make([]string, 0, len(results.Failures))
	for _, name := range rerunTests(results) {
		patterns = append(patterns, regexp.QuoteMeta(name))
	}
	b.add("--run", "^("+strings.Join(patterns, "|")+")$", "--"+config.KeyDebug)
	return b.String()
}

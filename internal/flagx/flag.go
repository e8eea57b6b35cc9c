// Package flagx holds small helpers for parsing a subset of command-line
// flags without colliding with flags owned by other components.
package flagx

import (
	"flag"
	"io"
	"os"
	"strings"
)

// FilterArgs returns the arguments from args that belong to allowedFlags,
// together with their values.
//
// Both "-c conf.json" and "-config=conf.json" forms are recognized. A token
// following an allowed flag is treated as its value unless it starts with "-".
// The result is never nil.
func FilterArgs(args []string, allowedFlags []string) []string {
	allowed := make(map[string]struct{}, len(allowedFlags))
	for _, f := range allowedFlags {
		allowed[f] = struct{}{}
	}

	filtered := make([]string, 0, len(args))

	for i := 0; i < len(args); i++ {
		arg := args[i]

		if strings.HasPrefix(arg, "-") && strings.Contains(arg, "=") {
			name, _, _ := strings.Cut(arg, "=")
			if _, ok := allowed[name]; ok {
				filtered = append(filtered, arg)
			}
			continue
		}

		if _, ok := allowed[arg]; ok {
			filtered = append(filtered, arg)
			if i+1 < len(args) && !strings.HasPrefix(args[i+1], "-") {
				filtered = append(filtered, args[i+1])
				i++
			}
		}
	}

	return filtered
}

// lookupString parses os.Args for a single string flag registered under every
// name in names. The last occurrence wins; absent means "".
func lookupString(setName string, names ...string) string {
	var value string

	allowed := make([]string, 0, len(names))
	fs := flag.NewFlagSet(setName, flag.ContinueOnError)
	for _, n := range names {
		fs.StringVar(&value, n, "", "")
		allowed = append(allowed, "-"+n)
	}
	fs.SetOutput(io.Discard)
	_ = fs.Parse(FilterArgs(os.Args[1:], allowed))

	return value
}

// JsonConfigFlags returns the JSON config path given with -c or -config.
func JsonConfigFlags() string {
	return lookupString("json", "c", "config")
}

// EnvFileFlags returns the dotenv file path given with -env, if any.
func EnvFileFlags() string {
	return lookupString("env", "env")
}

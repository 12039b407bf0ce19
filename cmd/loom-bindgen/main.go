// Command loom-bindgen prints the C glue generated for a binding file.
//
//	loom-bindgen [-type] [-o out.c] [-cache dir] [-v] binding.yaml
package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/funvibe/loom/internal/config"
	"github.com/funvibe/loom/internal/diagnostics"
	"github.com/funvibe/loom/internal/ffi"
	"github.com/funvibe/loom/internal/token"
)

type options struct {
	typeMode bool
	out      string
	cacheDir string
	verbose  int
	path     string
}

func usage(w io.Writer, prog string) {
	fmt.Fprintf(w, "Usage: %s [-type] [-o out.c] [-cache dir] [-v] <binding.yaml>\n", prog)
}

func parseArgs(args []string) (*options, error) {
	opts := &options{}
	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch arg {
		case "-type", "--type":
			opts.typeMode = true
		case "-v", "--verbose":
			opts.verbose++
		case "-o", "--output":
			if i+1 >= len(args) {
				return nil, fmt.Errorf("%s needs a file", arg)
			}
			i++
			opts.out = args[i]
		case "-cache", "--cache":
			if i+1 >= len(args) {
				return nil, fmt.Errorf("%s needs a directory", arg)
			}
			i++
			opts.cacheDir = args[i]
		default:
			if strings.HasPrefix(arg, "-") {
				return nil, fmt.Errorf("unknown flag %s", arg)
			}
			if opts.path != "" {
				return nil, fmt.Errorf("only one binding file may be given")
			}
			opts.path = arg
		}
	}
	if opts.path == "" {
		return nil, fmt.Errorf("no binding file given")
	}
	return opts, nil
}

func run(args []string, stdout, stderr io.Writer) int {
	prog := "loom-bindgen"
	if len(args) > 0 {
		prog, args = args[0], args[1:]
	}
	opts, err := parseArgs(args)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %s\n", err)
		usage(stderr, prog)
		return 2
	}
	config.ConfigureLogging(config.LogSettings{Verbosity: opts.verbose})

	bf, err := ffi.LoadBindingFile(opts.path)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %s\n", err)
		return 1
	}
	receiver := opts.typeMode || bf.Mode == config.BindModeType
	decls := bf.Declarations()

	src, err := ffi.GenerateSource(decls, receiver)
	if err != nil {
		diagnostics.Render(stderr, ffi.Diagnostic(err, token.Position{File: opts.path}), diagnostics.RenderOptions{})
		return 1
	}
	key, err := ffi.Fingerprint(decls, receiver)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %s\n", err)
		return 1
	}
	if opts.cacheDir != "" {
		cache := ffi.NewSourceCache(opts.cacheDir)
		if err := cache.Store(key, src); err != nil {
			fmt.Fprintf(stderr, "Error: %s\n", err)
			return 1
		}
		fmt.Fprintf(stderr, "cached %s\n", cache.Path(key))
	}

	text := fmt.Sprintf("/* generated by loom-bindgen from %s, fingerprint %s */\n%s", opts.path, key, src.Text)
	if opts.out == "" {
		io.WriteString(stdout, text)
		return 0
	}
	if err := os.WriteFile(opts.out, []byte(text), 0o644); err != nil {
		fmt.Fprintf(stderr, "Error: %s\n", err)
		return 1
	}
	return 0
}

func main() {
	os.Exit(run(os.Args, os.Stdout, os.Stderr))
}

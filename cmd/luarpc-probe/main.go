// Command luarpc-probe is a reference CLI client: it connects to a
// luarpcd-compatible server and performs a single CALL, GET, or
// NEWINDEX against a dotted path, printing the result.
package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/atsika/luarpc/negotiate"
	"github.com/atsika/luarpc/rpcnet"
	"github.com/atsika/luarpc/wire"
	"github.com/spf13/pflag"
)

var opt struct {
	Addr  string
	Call  string
	Get   string
	Set   string
	Async bool
	Help  bool
}

func init() {
	pflag.StringVar(&opt.Addr, "addr", "127.0.0.1:8473", "server address to dial")
	pflag.StringVar(&opt.Call, "call", "", "dotted path to call, with remaining args as arguments")
	pflag.StringVar(&opt.Get, "get", "", "dotted path to read")
	pflag.StringVar(&opt.Set, "set", "", "dotted path to write (the first remaining arg is the value)")
	pflag.BoolVar(&opt.Async, "async", false, "use async mode for --call (fire-and-forget, no reply printed)")
	pflag.BoolVarP(&opt.Help, "help", "h", false, "show this help text")
}

func main() {
	pflag.Parse()
	if opt.Help {
		fmt.Printf("usage: %s --addr host:port [--call path arg...] [--get path] [--set path value]\n\noptions:\n%s", os.Args[0], pflag.CommandLine.FlagUsages())
		os.Exit(0)
	}

	modes := 0
	for _, s := range []string{opt.Call, opt.Get, opt.Set} {
		if s != "" {
			modes++
		}
	}
	if modes != 1 {
		fmt.Fprintln(os.Stderr, "error: exactly one of --call, --get, --set is required")
		os.Exit(2)
	}

	h, err := rpcnet.Connect(opt.Addr, negotiate.HostNative())
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: connect %s: %v\n", opt.Addr, err)
		os.Exit(1)
	}
	defer h.Close()

	switch {
	case opt.Call != "":
		h.SetAsync(opt.Async)
		acc, err := resolveAccessor(h, opt.Call)
		if err != nil {
			fail(err)
		}
		results, err := acc.Call(parseValues(pflag.Args())...)
		if err != nil {
			fail(err)
		}
		if opt.Async {
			fmt.Printf("queued, %d reply pending\n", h.PendingReplies())
			return
		}
		printValues(results)

	case opt.Get != "":
		acc, err := resolveAccessor(h, opt.Get)
		if err != nil {
			fail(err)
		}
		v, err := acc.Get()
		if err != nil {
			fail(err)
		}
		printValues([]wire.Value{v})

	case opt.Set != "":
		acc, err := resolveAccessor(h, opt.Set)
		if err != nil {
			fail(err)
		}
		args := pflag.Args()
		if len(args) != 1 {
			fmt.Fprintln(os.Stderr, "error: --set requires exactly one value argument")
			os.Exit(2)
		}
		if err := acc.Set(parseValue(args[0])); err != nil {
			fail(err)
		}
		fmt.Println("ok")
	}
}

func resolveAccessor(h *rpcnet.Handle, path string) (*rpcnet.Accessor, error) {
	segs := strings.Split(path, ".")
	acc, err := h.Root(segs[0])
	if err != nil {
		return nil, err
	}
	for _, seg := range segs[1:] {
		if acc, err = acc.Field(seg); err != nil {
			return nil, err
		}
	}
	return acc, nil
}

// parseValue converts a single CLI argument into a wire.Value: anything
// strconv.ParseFloat accepts becomes a number, anything strconv.ParseBool
// accepts ("true", "false", "t", "F", "TRUE", ...) becomes a boolean,
// everything else is a string.
func parseValue(s string) wire.Value {
	if n, err := strconv.ParseFloat(s, 64); err == nil {
		return wire.Number(n)
	}
	if b, err := strconv.ParseBool(s); err == nil {
		return wire.Bool(b)
	}
	return wire.String([]byte(s))
}

func parseValues(ss []string) []wire.Value {
	vs := make([]wire.Value, len(ss))
	for i, s := range ss {
		vs[i] = parseValue(s)
	}
	return vs
}

func printValues(vs []wire.Value) {
	for _, v := range vs {
		switch v.Kind() {
		case wire.KindNil:
			fmt.Println("nil")
		case wire.KindBool:
			fmt.Println(v.AsBool())
		case wire.KindNumber:
			fmt.Println(v.AsNumber())
		case wire.KindString:
			fmt.Println(string(v.AsString()))
		case wire.KindTable:
			fmt.Printf("table(%d entries)\n", len(v.AsTable()))
		case wire.KindFunction:
			fmt.Println("function")
		}
	}
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}

// Command arcshell is a single interactive loop that reads SQL
// statements from standard input, one per line, executes them against
// a disk-backed store, and prints result rows to standard output.
//
// A bufio.Scanner loop over stdin with an enlarged buffer, a prompt
// only when stdin is a terminal, an `Error: ` prefix on failures, and
// clean EOF exiting 0. This engine's grammar has no ';'-terminated
// multi-line statements, so each line is one complete statement.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/arcflow-db/arcdb/internal/interp"
	"github.com/arcflow-db/arcdb/internal/sqlfront"
	"github.com/arcflow-db/arcdb/internal/store"
	"gopkg.in/yaml.v3"
)

var (
	flagDir    = flag.String("dir", ".", "directory holding table and index files")
	flagFrames = flag.Int("frames", 64, "buffer pool size, in frames")
	flagConfig = flag.String("config", "", "optional YAML file overriding -dir/-frames")
)

// config mirrors the subset of flags a deployment may want to pin in a
// file instead of passing on the command line.
type config struct {
	Dir    string `yaml:"dir"`
	Frames int    `yaml:"frames"`
}

func loadConfig(path string) (config, error) {
	cfg := config{Dir: *flagDir, Frames: *flagFrames}
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

func main() {
	flag.Parse()

	cfg, err := loadConfig(*flagConfig)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}

	st, err := store.Open(cfg.Dir, cfg.Frames)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
	defer st.Close()

	runREPL(interp.New(st))
}

func runREPL(in *interp.Interpreter) {
	sc := bufio.NewScanner(os.Stdin)
	sc.Buffer(make([]byte, 1024), 4*1024*1024)

	interactive := false
	if fi, err := os.Stdin.Stat(); err == nil {
		interactive = (fi.Mode() & os.ModeCharDevice) != 0
	}

	for {
		if interactive {
			fmt.Print("arcsql> ")
		}
		if !sc.Scan() {
			return
		}

		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "--") {
			continue
		}

		if err := execLine(in, line); err != nil {
			fmt.Println("Error:", err)
		}
	}
}

func execLine(in *interp.Interpreter, line string) error {
	stmt, err := sqlfront.NewParser(line).ParseStatement()
	if err != nil {
		return err
	}
	res, err := in.Run(stmt)
	if err != nil {
		return err
	}
	if len(res.Rows) > 0 {
		fmt.Println(res)
	}
	return nil
}

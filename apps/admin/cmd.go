package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"golang.org/x/term"

	"github.com/trezcool/prepdesk/apps/shared"
	"github.com/trezcool/prepdesk/core"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errHelp       = errors.New("help provided")
	errNoDatabase = errors.New("database unavailable")
)

type commandLine struct {
	conf *core.Config
	db   *sql.DB
	c    *shared.Container
	out  io.Writer
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  migrate COMMAND [ARGS] - run a goose command (up, down, status, ...) on the database")
	fmt.Fprintln(cli.out, "  hashpassword - print the bcrypt hash of the admin password, prompted next")
	fmt.Fprintln(cli.out, "  import -part-template ID -part N -file PATH [-name NAME] [-status STATUS] [-media REF=PATH ...]")
	fmt.Fprintln(cli.out, "         - save the content of a file to a part template")
	fmt.Fprintln(cli.out, "  diff -part N -a PATH -b PATH - compare the payloads two content files would submit")
	fmt.Fprintln(cli.out, "  history -part-template ID - list the save cycles of a part template")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	importCmd := flag.NewFlagSet("import", flag.ContinueOnError)
	importCmd.SetOutput(cli.out)
	importTemplate := importCmd.String("part-template", "", "The part template to save to.")
	importPart := importCmd.Int("part", 0, "The part (1-7) of the template.")
	importFile := importCmd.String("file", "", "JSON content, grouped or flat.")
	importName := importCmd.String("name", "", "The template name. Defaults to the part name.")
	importStatus := importCmd.String("status", "", "The template status. Defaults to the configured status.")
	importMedia := mediaFlag{}
	importCmd.Var(importMedia, "media", "A local file for a media passage, as REF=PATH. Repeatable.")

	diffCmd := flag.NewFlagSet("diff", flag.ContinueOnError)
	diffCmd.SetOutput(cli.out)
	diffPart := diffCmd.Int("part", 0, "The part (1-7) of both files.")
	diffA := diffCmd.String("a", "", "The original content file.")
	diffB := diffCmd.String("b", "", "The changed content file.")

	historyCmd := flag.NewFlagSet("history", flag.ContinueOnError)
	historyCmd.SetOutput(cli.out)
	historyTemplate := historyCmd.String("part-template", "", "The part template.")

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(ctx, args[2:])

	case "hashpassword":
		fmt.Fprint(cli.out, "Enter password:")
		pwd, err := readPasswordFunc(int(syscall.Stdin))
		fmt.Fprintln(cli.out)
		if err != nil {
			return err
		}
		if len(pwd) == 0 {
			cli.printUsage()
			return errHelp
		}
		return cli.hashPassword(pwd)

	case "import":
		if err := importCmd.Parse(args[2:]); err != nil {
			return err
		}
		if strings.TrimSpace(*importTemplate) == "" || *importPart == 0 || *importFile == "" {
			importCmd.Usage()
			return errHelp
		}
		return cli.importContent(ctx, importArgs{
			partTemplateID: *importTemplate,
			part:           *importPart,
			file:           *importFile,
			name:           *importName,
			status:         *importStatus,
			media:          importMedia,
		})

	case "diff":
		if err := diffCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *diffPart == 0 || *diffA == "" || *diffB == "" {
			diffCmd.Usage()
			return errHelp
		}
		return cli.diff(*diffPart, *diffA, *diffB)

	case "history":
		if err := historyCmd.Parse(args[2:]); err != nil {
			return err
		}
		if strings.TrimSpace(*historyTemplate) == "" {
			historyCmd.Usage()
			return errHelp
		}
		return cli.history(ctx, *historyTemplate)

	default:
		cli.printUsage()
		return errHelp
	}
}

// mediaFlag collects REF=PATH pairs.
type mediaFlag map[string]string

func (mf mediaFlag) String() string {
	pairs := make([]string, 0, len(mf))
	for ref, path := range mf {
		pairs = append(pairs, ref+"="+path)
	}
	return strings.Join(pairs, ",")
}

func (mf mediaFlag) Set(v string) error {
	parts := strings.SplitN(v, "=", 2)
	if len(parts) != 2 || strings.TrimSpace(parts[0]) == "" || parts[1] == "" {
		return fmt.Errorf("%q is not of the form REF=PATH", v)
	}
	mf[core.CleanString(parts[0])] = parts[1]
	return nil
}

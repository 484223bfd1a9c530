package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/pkg/errors"
	"github.com/pmezard/go-difflib/difflib"

	"github.com/trezcool/prepdesk/core/template"
)

type importArgs struct {
	partTemplateID string
	part           int
	file           string
	name           string
	status         string
	media          map[string]string
}

func parsePart(part int) (template.PartKind, error) {
	kind := template.PartKind(part)
	if !kind.Valid() {
		return 0, fmt.Errorf("part must be between 1 and 7 (got %d)", part)
	}
	return kind, nil
}

func readContent(path string) ([]*template.Passage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	passages, err := template.ParseContent(data)
	if err != nil {
		return nil, errors.Wrap(err, path)
	}
	return passages, nil
}

// importContent hydrates an editor from a content file, stages the local media files and runs a save cycle.
// Cancelling ctx closes the editor, which aborts its uploads and submission.
func (cli *commandLine) importContent(ctx context.Context, args importArgs) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	kind, err := parsePart(args.part)
	if err != nil {
		return err
	}
	passages, err := readContent(args.file)
	if err != nil {
		return err
	}

	e := template.NewEditor(args.partTemplateID, kind)
	defer e.Close()
	stop := context.AfterFunc(ctx, e.Close)
	defer stop()

	if err = e.Hydrate(passages); err != nil {
		return err
	}
	if err = cli.stageMedia(e, args.media); err != nil {
		return err
	}

	meta := template.TemplateMeta{Name: args.name, Status: args.status}
	if err = cli.c.TemplateSvc.Save(e, meta); err != nil {
		if ctx.Err() != nil {
			return errors.Wrap(ctx.Err(), "import interrupted")
		}
		return err
	}

	passages = e.Passages()
	n := template.Notification(nil, len(passages), len(template.QuestionNumbers(passages)))
	fmt.Fprintf(cli.out, "%s: %s\n", n.Title, n.Message)
	return nil
}

func (cli *commandLine) stageMedia(e *template.Editor, media map[string]string) error {
	byRef := make(map[string]*template.Passage)
	for _, p := range e.Passages() {
		byRef[p.Ref] = p
	}

	limits := template.MediaLimits{
		MaxImageBytes: cli.conf.Uploads.MaxImageBytes,
		MaxAudioBytes: cli.conf.Uploads.MaxAudioBytes,
	}
	for ref, path := range media {
		p, ok := byRef[ref]
		if !ok {
			return fmt.Errorf("no passage with ref %q", ref)
		}
		if err := cli.stageFile(e, p, path, limits); err != nil {
			return errors.Wrapf(err, "passage %q", ref)
		}
	}
	return nil
}

func (cli *commandLine) stageFile(e *template.Editor, p *template.Passage, path string, limits template.MediaLimits) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	pv, err := cli.c.Previews.Stage(f, filepath.Base(path))
	if err != nil {
		return err
	}
	if err = template.CheckMedia(p.Type, pv.MIMEType, pv.Size, limits); err != nil {
		_ = pv.Release()
		return err
	}
	if _, err = e.StageMedia(p.ID, pv); err != nil {
		_ = pv.Release()
		return err
	}
	return nil
}

// diff prints a unified diff of the content two files would submit.
func (cli *commandLine) diff(part int, pathA, pathB string) error {
	kind, err := parsePart(part)
	if err != nil {
		return err
	}
	a, err := assembledLines(kind, pathA)
	if err != nil {
		return err
	}
	b, err := assembledLines(kind, pathB)
	if err != nil {
		return err
	}

	text, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        a,
		B:        b,
		FromFile: pathA,
		ToFile:   pathB,
		Context:  3,
	})
	if err != nil {
		return err
	}
	if text == "" {
		fmt.Fprintln(cli.out, "no differences")
		return nil
	}
	fmt.Fprint(cli.out, text)
	return nil
}

func assembledLines(kind template.PartKind, path string) ([]string, error) {
	passages, err := readContent(path)
	if err != nil {
		return nil, err
	}
	content, err := template.Assemble(kind, passages)
	if err != nil {
		return nil, errors.Wrap(err, path)
	}
	data, err := json.MarshalIndent(content, "", "  ")
	if err != nil {
		return nil, err
	}
	return difflib.SplitLines(string(data)), nil
}

func (cli *commandLine) history(ctx context.Context, partTemplateID string) error {
	entries, err := cli.c.TemplateSvc.History(ctx, partTemplateID)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Fprintln(cli.out, "no saves")
		return nil
	}

	w := tabwriter.NewWriter(cli.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "WHEN\tPART\tOUTCOME\tPASSAGES\tQUESTIONS\tUPLOADS\tMESSAGE")
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%d\t%s\t%d\t%d\t%d\t%s\n",
			e.CreatedAt.Format("2006-01-02 15:04:05"), e.Part, e.Outcome, e.Passages, e.Questions, e.Uploads, e.Message)
	}
	return w.Flush()
}

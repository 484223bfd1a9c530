package main

import (
	"context"
	"fmt"
	"os"

	"github.com/trezcool/prepdesk/apps/shared"
	"github.com/trezcool/prepdesk/core"
)

func main() {
	conf := core.NewConfig()
	logger := shared.NewLogger(conf, "ADMIN")

	st, err := shared.OpenStorage(context.Background(), conf, logger)
	if err != nil {
		logger.Fatal("opening storage", err)
	}
	c, err := shared.NewContainer(conf, logger, st)
	if err != nil {
		st.Close()
		logger.Fatal("building services", err)
	}

	cli := commandLine{conf: conf, c: c, out: os.Stdout}
	if st.DB != nil {
		cli.db = st.DB.DB
	}
	err = cli.run(os.Args)
	c.Previews.ReleaseAll()
	st.Close()
	if err != nil {
		if err != errHelp {
			fmt.Fprintf(os.Stderr, "\nerror: %s\n", err)
		}
		os.Exit(1)
	}
}

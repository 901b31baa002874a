package main

import (
	"context"
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"

	"github.com/abiaedu/portal/core/report"
)

func (cli *commandLine) export(ctx context.Context, filter report.ExportFilter, path string) error {
	sheet, err := cli.reportSvc.Export(ctx, filter)
	if err != nil {
		return err
	}
	if err = os.WriteFile(path, sheet.Content, 0o644); err != nil {
		return errors.Wrap(err, "writing export")
	}
	fmt.Fprintf(cli.out, "wrote %s (%d submissions, %s)\n", path, sheet.Rows, humanize.Bytes(uint64(len(sheet.Content))))
	return nil
}

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	spreadsheet "github.com/vogtb/go-spreadsheet-engine"
)

// ssheetctl is a thin external collaborator over the Engine API (spec
// §1's "top-level workbook API surface ... is external"): load a
// workbook, poke cells, dump a sheet, save it back out.
func main() {
	var workbookPath string
	var verbose bool

	root := &cobra.Command{
		Use:   "ssheetctl",
		Short: "inspect and edit a spreadsheet workbook file",
	}
	root.PersistentFlags().StringVar(&workbookPath, "workbook", "", "path to a workbook JSON file")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	newLogger := func() *zap.Logger {
		if verbose {
			l, _ := zap.NewDevelopment()
			return l
		}
		return zap.NewNop()
	}

	loadEngine := func() (*spreadsheet.Engine, error) {
		e := spreadsheet.NewEngine(spreadsheet.WithLogger(newLogger()))
		if workbookPath == "" {
			return e, nil
		}
		f, err := os.Open(workbookPath)
		if err != nil {
			if os.IsNotExist(err) {
				return e, nil
			}
			return nil, err
		}
		defer f.Close()
		if err := e.LoadFromStream(f); err != nil {
			return nil, err
		}
		return e, nil
	}

	saveEngine := func(e *spreadsheet.Engine) error {
		if workbookPath == "" {
			return fmt.Errorf("--workbook is required to save")
		}
		f, err := os.Create(workbookPath)
		if err != nil {
			return err
		}
		defer f.Close()
		return e.SaveToStream(f)
	}

	setCmd := &cobra.Command{
		Use:   "set [sheet] [cell] [contents]",
		Short: "set a cell's contents and save",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEngine()
			if err != nil {
				return err
			}
			col, row, _, _, ok := spreadsheet.ParseCellAddress(args[1])
			if !ok {
				return fmt.Errorf("invalid cell address %q", args[1])
			}
			contents := args[2]
			if _, err := e.SetCellContents(args[0], col, row, &contents); err != nil {
				return err
			}
			return saveEngine(e)
		},
	}

	getCmd := &cobra.Command{
		Use:   "get [sheet] [cell]",
		Short: "print a cell's current value",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEngine()
			if err != nil {
				return err
			}
			col, row, _, _, ok := spreadsheet.ParseCellAddress(args[1])
			if !ok {
				return fmt.Errorf("invalid cell address %q", args[1])
			}
			v, err := e.GetCellValue(args[0], col, row)
			if err != nil {
				return err
			}
			fmt.Println(v.Render())
			return nil
		},
	}

	dumpCmd := &cobra.Command{
		Use:   "dump [sheet]",
		Short: "print every non-empty cell's contents and value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEngine()
			if err != nil {
				return err
			}
			locs, err := e.PopulatedLocations(args[0])
			if err != nil {
				return err
			}
			for _, loc := range locs {
				col, row, _, _, _ := spreadsheet.ParseCellAddress(loc)
				contents, _ := e.GetCellContents(args[0], col, row)
				value, _ := e.GetCellValue(args[0], col, row)
				fmt.Printf("%s\t%s\t%s\n", loc, contents, value.Render())
			}
			return nil
		},
	}

	listCmd := &cobra.Command{
		Use:   "list-sheets",
		Short: "print every sheet name",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEngine()
			if err != nil {
				return err
			}
			for _, name := range e.ListSheets() {
				fmt.Println(name)
			}
			return nil
		},
	}

	createCmd := &cobra.Command{
		Use:   "create-sheet [name]",
		Short: "create a new sheet and save",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEngine()
			if err != nil {
				return err
			}
			if err := e.CreateSheet(args[0]); err != nil {
				return err
			}
			return saveEngine(e)
		},
	}

	root.AddCommand(setCmd, getCmd, dumpCmd, listCmd, createCmd)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

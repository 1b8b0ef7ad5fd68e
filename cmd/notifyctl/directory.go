package main

import (
	"github.com/spf13/cobra"

	"civicnotify/internal/config"
	"civicnotify/internal/directory"
)

func directoryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "directory",
		Short: "Show department routing and production readiness",
		Long: `List every department contact, flag contacts still on test numbers
and report configuration that is not fit for production.

Examples:
  notifyctl directory
  notifyctl directory -o json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			dir, err := loadDirectory(cfg)
			if err != nil {
				return err
			}
			return outputResult(cmd.OutOrStdout(), buildDirectoryResult(cfg, dir), outputFmt)
		},
	}
}

func loadDirectory(cfg *config.Config) (*directory.Directory, error) {
	var fallback *directory.DepartmentContact
	if cfg.DefaultContact != "" {
		name, address, err := config.ParseContact(cfg.DefaultContact)
		if err != nil {
			return nil, err
		}
		fallback = &directory.DepartmentContact{Name: name, Address: address}
	}
	return directory.LoadFile(cfg.DirectoryFile, fallback)
}

func buildDirectoryResult(cfg *config.Config, dir *directory.Directory) DirectoryResult {
	toInfo := func(c directory.DepartmentContact) ContactInfo {
		return ContactInfo{
			City:        c.City,
			Category:    c.Category,
			Name:        c.Name,
			Address:     c.Address,
			Placeholder: directory.IsPlaceholder(c),
		}
	}

	r := DirectoryResult{
		Default: toInfo(dir.Default()),
		Cities:  dir.Cities(),
	}
	for _, c := range dir.Entries() {
		r.Departments = append(r.Departments, toInfo(c))
	}
	r.PlaceholderCount = len(dir.Placeholders())

	readiness := cfg.CheckReadiness()
	r.Errors = readiness.Errors
	r.Warnings = readiness.Warnings
	if r.PlaceholderCount > 0 {
		r.Warnings = append(r.Warnings, pluralize(r.PlaceholderCount, "department still uses", "departments still use")+" a test number")
	}
	if r.Default.Placeholder {
		r.Warnings = append(r.Warnings, "the default contact is a test number")
	}
	r.Ready = len(r.Errors) == 0
	return r
}

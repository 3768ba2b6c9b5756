/*
Copyright © 2021 NAME HERE <EMAIL ADDRESS>

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"github.com/spf13/cobra"

	"github.com/namvu9/btcore/internal/config"
)

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration",
	Long: `This command prints the settings bitsy would run with, after applying the config file, BITSY_* environment variables and flags.

Examples:

bitsy config
bitsy config --port 51413 --write
`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := cfg.YAML()
		if err != nil {
			return err
		}

		if write, _ := cmd.Flags().GetBool("write"); !write {
			_, err = cmd.OutOrStdout().Write(data)
			return err
		}

		path := cfgFile
		if path == "" {
			if path, err = config.DefaultFile(); err != nil {
				return err
			}
		}

		if err := writeFile(path, data); err != nil {
			return err
		}

		logf("Wrote %s\n", path)

		return nil
	},
}

func init() {
	configCmd.Flags().Bool("write", false, "write the settings to the config file")
	rootCmd.AddCommand(configCmd)
}

package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/buzzfrog/Industrial-IoT/internal/app/jobs"
)

var jobsFlags struct {
	file string
}

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Show the subscriptions a published-nodes file converts into",
	RunE: func(cmd *cobra.Command, _ []string) error {
		opts := jobs.Options{}
		file := jobsFlags.file
		if cfg, err := loadConfig(); err == nil {
			opts.DefaultPublishingInterval = cfg.PublishedNodes.DefaultPublishingInterval
			opts.DefaultSamplingInterval = cfg.PublishedNodes.DefaultSamplingInterval
			opts.DefaultHeartbeatInterval = cfg.PublishedNodes.DefaultHeartbeatInterval
			if file == "" {
				file = cfg.PublishedNodes.File
			}
		}
		if file == "" {
			return fmt.Errorf("no published-nodes file: pass --file or set published_nodes.file")
		}

		js, err := jobs.NewConverter(opts, zerolog.Nop()).ReadFile(file)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "JOB\tENDPOINT\tSECURITY\tPUBLISHING\tNODES")
		for _, j := range js {
			fmt.Fprintf(w, "%s\t%s\t%s/%s\t%s\t%d\n", j.ID, j.Connection.Endpoint,
				j.Connection.SecurityMode, j.Connection.SecurityPolicy, j.PublishingInterval, len(j.Nodes))
		}
		return w.Flush()
	},
}

func init() {
	jobsCmd.Flags().StringVar(&jobsFlags.file, "file", "", "Published-nodes JSON file (defaults to published_nodes.file)")
}

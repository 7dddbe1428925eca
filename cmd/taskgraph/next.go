package main

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var nextCmd = &cobra.Command{
	Use:   "next",
	Short: "Show what a user should work on next",
	RunE:  runNext,
}

var (
	nextUser  string
	nextLimit int
)

func init() {
	nextCmd.Flags().StringVar(&nextUser, "user", "", "User to rank for (default the actor)")
	nextCmd.Flags().IntVar(&nextLimit, "limit", 0, "Maximum number of tasks (default from daemon config)")
}

func runNext(cmd *cobra.Command, args []string) error {
	q := url.Values{}
	if nextUser != "" {
		q.Set("user", nextUser)
	}
	if nextLimit > 0 {
		q.Set("limit", strconv.Itoa(nextLimit))
	}
	path := "/whats-next"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	resp, err := apiGet(path)
	if err != nil {
		return err
	}

	next := resp.Array()
	if len(next) == 0 {
		fmt.Println("Nothing to do")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "#\tID\tTITLE\tSTATUS\tPRIORITY\tREASON")
	for i, n := range next {
		t := n.Get("task")
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n", i+1,
			truncateID(t.Get("id").String()),
			truncate(t.Get("title").String(), 40),
			t.Get("status").String(),
			t.Get("priority").String(),
			n.Get("reason").String(),
		)
	}
	w.Flush()
	return nil
}

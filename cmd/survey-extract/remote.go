package main

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/joseph-ayodele/survey-extractor/internal/ingest"
	"github.com/joseph-ayodele/survey-extractor/internal/server"
)

var (
	flagAddr        string
	flagRemoteWait  time.Duration
	flagSubmitPages []int
)

var submitCmd = &cobra.Command{
	Use:   "submit <file>",
	Short: "Queue a document on a running surveyd and print its run id",
	Args:  cobra.ExactArgs(1),
	RunE:  runSubmit,
}

var statusCmd = &cobra.Command{
	Use:   "status <run-id>",
	Short: "Fetch a run and its page outcomes from a running surveyd",
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(submitCmd, statusCmd)

	for _, c := range []*cobra.Command{submitCmd, statusCmd} {
		c.Flags().StringVar(&flagAddr, "addr", "localhost:8080", "surveyd gRPC address")
		c.Flags().DurationVar(&flagRemoteWait, "timeout", time.Minute, "Call timeout")
	}
	submitCmd.Flags().IntSliceVar(&flagSubmitPages, "pages", nil, "Zero-based page indices to process (default: every page)")
}

func dialDaemon() (*server.ExtractionClient, func(), error) {
	conn, err := grpc.NewClient(flagAddr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.MaxCallSendMsgSize(96<<20)))
	if err != nil {
		return nil, nil, err
	}
	return server.NewExtractionClient(conn), func() { _ = conn.Close() }, nil
}

func runSubmit(cmd *cobra.Command, args []string) error {
	doc, _, err := ingest.LoadFile(args[0])
	if err != nil {
		return err
	}
	pages := make([]any, 0, len(flagSubmitPages))
	for _, p := range flagSubmitPages {
		pages = append(pages, p)
	}
	req, err := structpb.NewStruct(map[string]any{
		"document_id":    doc.ID,
		"filename":       doc.Filename,
		"content":        base64.StdEncoding.EncodeToString(doc.Content),
		"selected_pages": pages,
	})
	if err != nil {
		return err
	}

	client, closeConn, err := dialDaemon()
	if err != nil {
		return err
	}
	defer closeConn()
	ctx, cancel := contextWithTimeout(cmd)
	defer cancel()

	resp, err := client.Submit(ctx, req)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), resp.GetFields()["run_id"].GetStringValue())
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	client, closeConn, err := dialDaemon()
	if err != nil {
		return err
	}
	defer closeConn()
	ctx, cancel := contextWithTimeout(cmd)
	defer cancel()

	req, err := structpb.NewStruct(map[string]any{"run_id": args[0]})
	if err != nil {
		return err
	}
	resp, err := client.GetRun(ctx, req)
	if err != nil {
		return err
	}
	b, err := protojson.MarshalOptions{Multiline: true, Indent: "  "}.Marshal(resp)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(b))
	return nil
}

func contextWithTimeout(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	if flagRemoteWait <= 0 {
		return context.WithCancel(cmd.Context())
	}
	return context.WithTimeout(cmd.Context(), flagRemoteWait)
}

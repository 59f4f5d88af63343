package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/wms-platform/cfs-destuffing-service/internal/api/dto"
	"github.com/wms-platform/cfs-destuffing-service/internal/application"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var refresh bool
	cmd := &cobra.Command{
		Use:   "status <plan> <container>",
		Short: "Show a container and its HBL destuff statuses",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			container, err := client.container(cmd.Context(), args[0], args[1], refresh)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), renderContainer(container))
			return nil
		},
	}
	cmd.Flags().BoolVar(&refresh, "refresh", false, "Refetch from the backend instead of the cached view")
	return cmd
}

func newUnsealCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "unseal <plan> <container>",
		Short: "Break the seal of a waiting container",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			container, err := client.unseal(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Unsealed %s, working status %s\n", container.ContainerID, container.WorkingStatus)
			return nil
		},
	}
}

func newResealCommand(ctx *commandContext) *cobra.Command {
	var req dto.ResealRequest
	cmd := &cobra.Command{
		Use:   "reseal <plan> <container>",
		Short: "Apply a new seal to a container",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(req.NewSealNumber) == "" {
				return fmt.Errorf("--seal is required")
			}
			client, err := ctx.client()
			if err != nil {
				return err
			}
			container, err := client.reseal(cmd.Context(), args[0], args[1], req)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Resealed %s with %s\n", container.ContainerID, req.NewSealNumber)
			return nil
		},
	}
	cmd.Flags().StringVar(&req.NewSealNumber, "seal", "", "New seal number")
	cmd.Flags().BoolVar(&req.OnHoldFlag, "on-hold", false, "Record the reseal as on hold")
	cmd.Flags().StringVar(&req.Note, "note", "", "Operator note")
	return cmd
}

func newStartCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "start <plan> <container> <hbl>",
		Short: "Start destuffing one HBL",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			res, err := client.start(cmd.Context(), args[0], args[1], args[2])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Destuffing %s (packing list %s)\n", res.HblID, dash(res.PackingListNo))
			if res.InspectionSessionID != "" {
				fmt.Fprintf(out, "Inspection session: %s\n", res.InspectionSessionID)
			}
			for _, w := range res.Warnings {
				fmt.Fprintf(out, "warning: %s\n", w)
			}
			return nil
		},
	}
}

func newResultCommand(ctx *commandContext) *cobra.Command {
	var req dto.DestuffResultRequest
	cmd := &cobra.Command{
		Use:   "result <plan> <container> <hbl>",
		Short: "Record the destuff result of one HBL",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			res, err := client.result(cmd.Context(), args[0], args[1], args[2], req)
			if err != nil {
				return err
			}
			suffix := ""
			if res.MetadataOnly {
				suffix = " (annotation only)"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Recorded result for %s%s\n", res.HblID, suffix)
			return nil
		},
	}
	cmd.Flags().StringVar(&req.Document, "document", "", "Document reference")
	cmd.Flags().StringVar(&req.Image, "image", "", "Image reference")
	cmd.Flags().StringVar(&req.Note, "note", "", "Operator note")
	cmd.Flags().BoolVar(&req.OnHold, "on-hold", false, "Put the HBL on hold")
	return cmd
}

func newCompleteCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "complete <plan> <container>",
		Short: "Close a container once every HBL is finished",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			res, err := client.complete(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if res.Outcome == application.OutcomeResealRequired {
				fmt.Fprintln(out, "Reseal required before this container can close.")
				if res.ResealPrompt != nil {
					if res.ResealPrompt.Reason != "" {
						fmt.Fprintf(out, "Reason: %s\n", res.ResealPrompt.Reason)
					}
					if res.ResealPrompt.LastSealNumber != "" {
						fmt.Fprintf(out, "Current seal: %s\n", res.ResealPrompt.LastSealNumber)
					}
				}
				fmt.Fprintf(out, "Run: destuffctl reseal %s %s --seal <number>\n", args[0], args[1])
				return nil
			}
			fmt.Fprintf(out, "Completed %s\n", args[1])
			return nil
		},
	}
}

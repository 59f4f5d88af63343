package main

import (
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/wms-platform/cfs-destuffing-service/internal/api/dto"
)

func renderHblTable(hbls []dto.HblResponse) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"HBL", "Code", "Packing list", "Status", "Bypass", "Session", "Busy"})

	for _, h := range hbls {
		packingList := h.PackingListNo
		if packingList == "" {
			packingList = h.PackingListID
		}
		tw.AppendRow(table.Row{
			h.HblID,
			h.HblCode,
			dash(packingList),
			string(h.DestuffStatus),
			yesNo(h.BypassStorageFlag != nil && *h.BypassStorageFlag),
			dash(h.InspectionSessionID),
			yesNo(h.Processing),
		})
	}

	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 4, Align: text.AlignLeft, AlignHeader: text.AlignLeft},
		{Number: 5, Align: text.AlignCenter, AlignHeader: text.AlignCenter},
		{Number: 7, Align: text.AlignCenter, AlignHeader: text.AlignCenter},
	})
	return tw.Render()
}

func renderContainer(c *dto.ContainerResponse) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Container %s (plan %s)\n", c.ContainerID, c.PlanID)
	if c.ContainerNo != "" {
		fmt.Fprintf(&b, "  Number:        %s\n", c.ContainerNo)
	}
	fmt.Fprintf(&b, "  Seal:          %s\n", dash(c.SealNumber))
	if c.NewSealNumber != "" {
		fmt.Fprintf(&b, "  New seal:      %s\n", c.NewSealNumber)
	}
	fmt.Fprintf(&b, "  Working:       %s\n", c.WorkingStatus)
	fmt.Fprintf(&b, "  Cargo:         %s\n", c.CargoLoadedStatus)
	fmt.Fprintf(&b, "  Can store:     %s\n", yesNo(c.CanStore))
	fmt.Fprintf(&b, "  Can complete:  %s\n", yesNo(c.CanComplete))
	if c.CompletionBlocker != "" {
		fmt.Fprintf(&b, "  Blocked by:    %s\n", c.CompletionBlocker)
	}
	if c.Provisional {
		b.WriteString("  (provisional, refresh to confirm)\n")
	}
	if c.ResealPrompt.Open {
		fmt.Fprintf(&b, "  Reseal needed: %s\n", dash(c.ResealPrompt.Reason))
	}
	if len(c.Hbls) > 0 {
		b.WriteString(renderHblTable(c.Hbls))
		b.WriteString("\n")
	}
	return b.String()
}

func dash(value string) string {
	if strings.TrimSpace(value) == "" {
		return "-"
	}
	return value
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}

package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/junction-api/junction/internal/resource"
)

var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Print the sample resource graph",
	Long:  "Display the resource types, attributes, and relationships the example server exposes",
	RunE: func(cmd *cobra.Command, args []string) error {
		graph, err := sampleGraph()
		if err != nil {
			return err
		}

		typeColor := color.New(color.FgCyan, color.Bold)
		attrColor := color.New(color.FgGreen)
		relColor := color.New(color.FgYellow)
		dimColor := color.New(color.Faint)

		for _, rc := range graph.All() {
			typeColor.Println(rc.PublicName)
			for _, attr := range rc.Attributes() {
				flags := ""
				if !attr.Sortable || !attr.Filterable {
					flags = dimColor.Sprintf(" (sortable=%t filterable=%t)", attr.Sortable, attr.Filterable)
				}
				fmt.Printf("  %s %s%s\n", attrColor.Sprint(attr.PublicName), attr.Kind, flags)
			}
			for _, rel := range rc.Relationships() {
				arrow := "->"
				if rel.Kind == resource.ToMany {
					arrow = "->*"
				}
				fmt.Printf("  %s %s %s\n", relColor.Sprint(rel.PublicName), arrow, rel.RightTypeName)
			}
			fmt.Println()
		}
		return nil
	},
}

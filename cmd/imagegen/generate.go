package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Appraisily/image-generation-service/internal/profile"
)

var (
	idFlag     string
	typeFlag   string
	attrFlag   map[string]string
	promptFlag string
	forceFlag  bool
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate (or fetch from cache) one entity's profile image",
	RunE:  runGenerate,
}

func init() {
	generateCmd.Flags().StringVar(&idFlag, "id", "", "Entity id")
	generateCmd.Flags().StringVarP(&typeFlag, "type", "t", string(profile.Appraiser), "Entity type (appraiser or location)")
	generateCmd.Flags().StringToStringVarP(&attrFlag, "attr", "a", nil, "Entity attribute as key=value (repeatable)")
	generateCmd.Flags().StringVar(&promptFlag, "prompt", "", "Literal prompt to use instead of a generated one")
	generateCmd.Flags().BoolVarP(&forceFlag, "force", "f", false, "Regenerate even when the cache matches")
	_ = generateCmd.MarkFlagRequired("id")
}

func runGenerate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	clients := mustClients(ctx, "imagegen")

	req := profile.NewRequest(idFlag, profile.EntityType(typeFlag), attrFlag).
		WithOverride(promptFlag).
		WithForce(forceFlag)

	res := clients.Orchestrator.GenerateForEntity(ctx, req)
	if err := printJSON(res); err != nil {
		return err
	}
	if !res.OK() {
		return fmt.Errorf("%s: %s", res.ErrorKind, res.Message)
	}
	return nil
}

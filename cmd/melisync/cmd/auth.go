package cmd

import (
	"context"

	"github.com/spf13/cobra"
)

func authCmd() *cobra.Command {
	var (
		code        string
		redirectURI string
	)

	c := &cobra.Command{
		Use:   "auth",
		Short: "用授权码换取并保存市场凭证",
		Run: func(cmd *cobra.Command, args []string) {
			deps := buildDependencies()

			token, err := deps.Services.Auth.InitFromCode(context.Background(), code, redirectURI)
			exitOnErr(err)

			printJSON(map[string]interface{}{
				"account_id":  token.AccountID,
				"environment": token.Environment,
				"expires_at":  token.ExpiresAt,
			})
		},
	}

	c.Flags().StringVar(&code, "code", "", "授权码")
	c.Flags().StringVar(&redirectURI, "redirect-uri", "", "与授权请求一致的回调地址")
	_ = c.MarkFlagRequired("code")
	_ = c.MarkFlagRequired("redirect-uri")
	return c
}

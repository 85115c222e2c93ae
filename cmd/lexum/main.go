package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/lexum-research/lexum/config"
	"github.com/lexum-research/lexum/internal/research/core"
	srv "github.com/lexum-research/lexum/internal/server"
)

func main() {
	var root = &cobra.Command{Use: "lexum"}

	root.AddCommand(serveCMD(), queryCMD(), tokenCMD())
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCMD() *cobra.Command {
	var cfgPath string
	var addr string
	var serve = &cobra.Command{
		Use:   "serve",
		Short: "Run HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.LoadConfig(cfgPath)
			if addr != "" {
				cfg.Server.Address = addr
			}
			return srv.Run(cfg)
		},
	}
	serve.Flags().StringVar(&addr, "addr", "", "listen address (overrides config)")
	serve.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file directory (default is .)")
	return serve
}

func queryCMD() *cobra.Command {
	var cfgPath string
	var timeout time.Duration
	var query = &cobra.Command{
		Use:   "query [text]",
		Short: "Run one research query and print the result as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.LoadConfig(cfgPath)

			pipeline, err := srv.BuildPipeline(cfg)
			if err != nil {
				return err
			}
			defer pipeline.Close()

			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()

			result, err := pipeline.Orch.Process(ctx, core.Query{Text: args[0]})
			if err != nil {
				return err
			}
			out, err := json.MarshalIndent(result, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	}
	query.Flags().DurationVar(&timeout, "timeout", 5*time.Minute, "overall processing timeout")
	query.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file directory (default is .)")
	return query
}

func tokenCMD() *cobra.Command {
	var cfgPath string
	var subject string
	var ttl time.Duration
	var token = &cobra.Command{
		Use:   "token",
		Short: "Mint a service JWT for the API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.LoadConfig(cfgPath)
			if cfg.Server.JWTSecret == "" {
				return fmt.Errorf("server.jwt_secret not configured")
			}
			signed, err := srv.SignToken(subject, []byte(cfg.Server.JWTSecret), ttl)
			if err != nil {
				return err
			}
			fmt.Println(signed)
			return nil
		},
	}
	token.Flags().StringVar(&subject, "subject", "cli", "token subject")
	token.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	token.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file directory (default is .)")
	return token
}

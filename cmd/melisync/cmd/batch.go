package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"meli_sync_v1_202601/internal/service"
)

func printJSON(v interface{}) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		log.Fatalf("结果序列化失败: %v", err)
	}
	fmt.Println(string(out))
}

func publishCmd() *cobra.Command {
	var (
		dryRun  bool
		sandbox bool
		listing int64
		code    string
	)

	c := &cobra.Command{
		Use:   "publish",
		Short: "发布合格商品 (默认整批，--listing/--code 定向)",
		Run: func(cmd *cobra.Command, args []string) {
			deps := buildDependencies()
			ctx := context.Background()
			opts := service.PublishOptions{DryRun: dryRun, Sandbox: sandbox}

			switch {
			case listing > 0:
				result, err := deps.Services.Batch.PublishListing(ctx, listing, opts)
				exitOnErr(err)
				printJSON(result)
			case code != "":
				result, err := deps.Services.Batch.PublishByCode(ctx, code, opts)
				exitOnErr(err)
				printJSON(result)
			default:
				result, err := deps.Services.Batch.RunPublishBatch(ctx, opts)
				exitOnErr(err)
				printJSON(result)
			}
		},
	}

	c.Flags().BoolVar(&dryRun, "dry-run", false, "只演算与打印 payload，不发网络请求、不落库")
	c.Flags().BoolVar(&sandbox, "sandbox", false, "沙箱模式，标题替换为测试哨兵")
	c.Flags().Int64Var(&listing, "listing", 0, "定向发布的刊登 id")
	c.Flags().StringVar(&code, "code", "", "定向发布的商品编码")
	return c
}

func syncCmd() *cobra.Command {
	var (
		dryRun  bool
		force   bool
		listing int64
	)

	c := &cobra.Command{
		Use:   "sync",
		Short: "差分同步 ACTIVE 刊登的价格与库存",
		Run: func(cmd *cobra.Command, args []string) {
			deps := buildDependencies()
			ctx := context.Background()
			opts := service.SyncOptions{DryRun: dryRun, Force: force}

			if listing > 0 {
				changed, err := deps.Services.Batch.SyncListing(ctx, listing, opts)
				exitOnErr(err)
				printJSON(map[string]bool{"updated": changed})
				return
			}

			result, err := deps.Services.Batch.RunSyncBatch(ctx, opts)
			exitOnErr(err)
			printJSON(result)
		},
	}

	c.Flags().BoolVar(&dryRun, "dry-run", false, "只演算差分，不推送")
	c.Flags().BoolVar(&force, "force", false, "忽略差分，推送完整重算结果")
	c.Flags().Int64Var(&listing, "listing", 0, "定向同步的刊登 id")
	return c
}

func pauseCmd() *cobra.Command {
	var dryRun bool

	c := &cobra.Command{
		Use:   "pause",
		Short: "暂停所有无货的 ACTIVE 刊登",
		Run: func(cmd *cobra.Command, args []string) {
			deps := buildDependencies()
			result, err := deps.Services.Batch.RunPauseBatch(context.Background(), dryRun)
			exitOnErr(err)
			printJSON(result)
		},
	}

	c.Flags().BoolVar(&dryRun, "dry-run", false, "只统计候选，不发网络请求")
	return c
}

func closeCmd() *cobra.Command {
	var (
		dryRun bool
		hours  int
	)

	c := &cobra.Command{
		Use:   "close",
		Short: "关闭暂停超过阈值的刊登",
		Run: func(cmd *cobra.Command, args []string) {
			deps := buildDependencies()
			result, err := deps.Services.Batch.RunCloseBatch(context.Background(), hours, dryRun)
			exitOnErr(err)
			printJSON(result)
		},
	}

	c.Flags().BoolVar(&dryRun, "dry-run", false, "只统计候选，不发网络请求")
	c.Flags().IntVar(&hours, "hours", 0, "暂停时长阈值，0 用配置默认值")
	return c
}

func exitOnErr(err error) {
	if err != nil {
		log.Println(err)
		os.Exit(1)
	}
}

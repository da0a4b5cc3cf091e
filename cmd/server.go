package cmd

import (
	"safi/server"

	"github.com/spf13/cobra"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "启动 Safi 服务器",
	Long:  `启动 HTTP 服务器，提供上传、查询、删除接口以及后台分离任务和文件清理`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return server.Start(cfg)
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)
}

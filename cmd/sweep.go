package cmd

import (
	"fmt"
	"time"

	"safi/core/sweeper"

	"github.com/spf13/cobra"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "立即清理一次过期上传文件",
	RunE: func(cmd *cobra.Command, args []string) error {
		s := sweeper.New(cfg.UploadDir, cfg.SweepInterval, cfg.RetentionWindow)
		removed := s.SweepOnce(time.Now())
		fmt.Fprintf(cmd.OutOrStdout(), "已清理 %d 个文件 (目录: %s, 保留期: %s)\n", removed, cfg.UploadDir, cfg.RetentionWindow)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sweepCmd)
}

package cmd

import (
	"context"
	"fmt"
	"time"

	"safi/storage"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var (
	minioPrefix string
	minioDelete bool
)

var minioCmd = &cobra.Command{
	Use:   "minio",
	Short: "MinIO分轨归档管理",
	Long:  `查看和管理MinIO存储桶中归档的分轨文件，支持按前缀列出文件和删除目录。`,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "MinIO配置: %s, Bucket: %s\n", cfg.MinioEndpoint, cfg.MinioBucket)

		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()

		store, err := storage.NewMinioStore(ctx, cfg)
		if err != nil {
			return fmt.Errorf("无法连接到MinIO: %w", err)
		}

		if minioDelete {
			if minioPrefix == "" {
				return fmt.Errorf("删除操作需要指定目录前缀")
			}
			n, err := store.RemovePrefix(ctx, minioPrefix)
			if err != nil {
				return fmt.Errorf("删除目录失败: %w", err)
			}
			fmt.Fprintf(out, "成功删除目录 %s 及其下的 %d 个文件\n", minioPrefix, n)
			return nil
		}

		objects, err := store.List(ctx, minioPrefix)
		if err != nil {
			return fmt.Errorf("列出文件失败: %w", err)
		}

		var total int64
		rows := make([][]string, 0, len(objects))
		for _, obj := range objects {
			total += obj.Size
			rows = append(rows, []string{
				obj.Key,
				humanize.Bytes(uint64(obj.Size)),
				obj.LastModified.Format(time.RFC3339),
			})
		}
		fmt.Fprintln(out, renderTable([]string{"Key", "Size", "Modified"}, rows, []columnAlignment{alignLeft, alignRight}))
		fmt.Fprintf(out, "对象数量: %d, 总大小: %s\n", len(objects), humanize.Bytes(uint64(total)))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(minioCmd)

	minioCmd.Flags().StringVarP(&minioPrefix, "prefix", "p", "stems/", "按前缀过滤文件或指定要操作的目录")
	minioCmd.Flags().BoolVarP(&minioDelete, "delete", "d", false, "删除指定目录及其下的所有文件")

	minioCmd.Example = `  # 列出所有归档分轨
  safi minio

  # 查看单个曲目的分轨
  safi minio -p "stems/42/"

  # 删除目录及其下的所有文件
  safi minio -d -p "stems/42/"`
}

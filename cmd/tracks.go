package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"safi/db"
	"safi/logger"
	"safi/model"
	"safi/repository"
	"safi/server"
	"safi/storage"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var tracksCmd = &cobra.Command{
	Use:   "tracks",
	Short: "查看和管理曲目",
}

var tracksListCmd = &cobra.Command{
	Use:   "list",
	Short: "列出所有曲目",
	RunE: func(cmd *cobra.Command, args []string) error {
		repo, closeDB, err := openTrackRepository()
		if err != nil {
			return err
		}
		defer closeDB()

		tracks, err := repo.List(cmd.Context())
		if err != nil {
			return err
		}
		printTracks(cmd.OutOrStdout(), tracks, time.Now())
		return nil
	},
}

var tracksDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "删除曲目及其上传文件和归档分轨",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil || id <= 0 {
			return fmt.Errorf("invalid track id %q", args[0])
		}

		repo, closeDB, err := openTrackRepository()
		if err != nil {
			return err
		}
		defer closeDB()

		var stems server.StemRemover
		if cfg.MinioEnabled {
			ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
			defer cancel()
			store, err := storage.NewMinioStore(ctx, cfg)
			if err != nil {
				logger.Warn("MinIO 不可用，归档分轨未删除", logger.ErrorField(err))
				fmt.Fprintf(cmd.ErrOrStderr(), "警告: 无法连接到MinIO，归档分轨未删除: %v\n", err)
			} else {
				stems = storage.NewStemArchive(store)
			}
		}

		return deleteTrack(cmd.Context(), cmd.OutOrStdout(), repo, stems, id)
	},
}

// deleteTrack 删除曲目记录、上传文件以及（可选）归档分轨
func deleteTrack(ctx context.Context, out io.Writer, repo repository.TrackRepository, stems server.StemRemover, id int64) error {
	track, err := repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrTrackNotFound) {
			return fmt.Errorf("track %d not found", id)
		}
		return err
	}
	if err := repo.Delete(ctx, id); err != nil {
		return err
	}
	server.RemoveUploadFiles(cfg.UploadDir, track.OriginalURL)
	if stems != nil {
		if err := stems.RemoveTrack(ctx, id); err != nil {
			logger.Warn("删除归档分轨失败", logger.TrackID(id), logger.ErrorField(err))
			fmt.Fprintf(out, "警告: 归档分轨删除失败: %v\n", err)
		}
	}
	fmt.Fprintf(out, "已删除曲目 %d (%s)\n", id, track.Title)
	return nil
}

func init() {
	tracksCmd.AddCommand(tracksListCmd, tracksDeleteCmd)
	rootCmd.AddCommand(tracksCmd)
}

func openTrackRepository() (repository.TrackRepository, func(), error) {
	gdb, err := db.Open(cfg)
	if err != nil {
		return nil, nil, err
	}
	if err := db.Migrate(gdb); err != nil {
		_ = db.Close(gdb)
		return nil, nil, err
	}
	return repository.NewGormTrackRepository(gdb), func() { _ = db.Close(gdb) }, nil
}

func printTracks(out io.Writer, tracks []*model.Track, now time.Time) {
	if len(tracks) == 0 {
		fmt.Fprintln(out, "暂无曲目")
		return
	}

	rows := make([][]string, 0, len(tracks))
	for _, t := range tracks {
		rows = append(rows, []string{
			strconv.FormatInt(t.ID, 10),
			t.Title,
			string(t.Status),
			yesNo(t.VocalsURL != nil),
			yesNo(t.InstrumentalURL != nil),
			humanize.RelTime(t.CreatedAt, now, "ago", "from now"),
		})
	}
	fmt.Fprintln(out, renderTable(
		[]string{"ID", "Title", "Status", "Vocals", "Instrumental", "Created"},
		rows,
		[]columnAlignment{alignRight},
	))
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "-"
}

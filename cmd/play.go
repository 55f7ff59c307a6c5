package cmd

import (
	"context"
	"fmt"
	"log"
	"time"

	"ZenMix/core/audio"

	"github.com/spf13/cobra"
)

var (
	playVolume  float64
	playSeconds int
)

var playCmd = &cobra.Command{
	Use:   "play <file-or-url>",
	Short: "本地播放音频文件",
	Long:  `使用扬声器后端循环播放一个音频文件或URL，用于验证音频链路。`,
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		adapter, err := audio.NewSpeakerAdapter()
		if err != nil {
			log.Fatalf("扬声器初始化失败: %v", err)
		}

		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()

		handle, err := adapter.Load(ctx, args[0])
		if err != nil {
			log.Fatalf("加载音频失败: %v", err)
		}
		defer handle.Unload()

		if seconds, known := handle.Duration(); known {
			fmt.Printf("时长: %.1fs\n", seconds)
		}

		if err := handle.SetVolume(playVolume); err != nil {
			log.Fatalf("设置音量失败: %v", err)
		}
		if err := handle.Play(); err != nil {
			log.Fatalf("播放失败: %v", err)
		}

		fmt.Printf("循环播放 %ds (音量 %.2f)...\n", playSeconds, playVolume)
		deadline := time.After(time.Duration(playSeconds) * time.Second)
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if pos, err := handle.Position(); err == nil {
					fmt.Printf("\r位置: %6.1fs", pos)
				}
			case <-deadline:
				fmt.Println("\n播放结束。")
				return
			}
		}
	},
}

func init() {
	rootCmd.AddCommand(playCmd)

	playCmd.Flags().Float64VarP(&playVolume, "volume", "v", 1.0, "播放音量 (0-1)")
	playCmd.Flags().IntVarP(&playSeconds, "seconds", "s", 10, "播放时长（秒）")
}

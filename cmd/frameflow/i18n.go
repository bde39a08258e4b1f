// Package main provides localization for the frameflow CLI.
package main

import (
	"github.com/ideamans/go-l10n"
)

func init() {
	// Register Japanese translations for CLI messages.
	l10n.Register("ja", l10n.LexiconMap{
		// Flag categories
		"Input":             "入力",
		"Output":            "出力先",
		"Video and Quality": "動画と品質",
		"Debug":             "デバッグ",
		"Logging":           "ログ",

		// Root command
		"Compose, play back and export layered video projects":                  "レイヤー構成の動画プロジェクトを合成・再生・書き出し",
		"frameflow renders scene and timeline projects to frames and MP4 files.": "frameflowはシーンとタイムラインのプロジェクトをフレームやMP4ファイルに描画します。",

		// Global flags
		"Configuration file (YAML or TOML)":             "設定ファイル（YAMLまたはTOML）",
		"Directory that asset ids are resolved against": "アセットIDの基準ディレクトリ",
		"Path to ffmpeg executable":                     "ffmpeg実行ファイルのパス",
		"Enable debug output":                           "デバッグ出力を有効化",
		"Directory for debug output":                    "デバッグ出力のディレクトリ",
		"Log level (debug, info, warn, error)":          "ログレベル（debug, info, warn, error）",
		"Log format (console, text, json)":              "ログ形式（console, text, json）",
		"Suppress all log output":                       "全てのログ出力を抑制",

		// Render flags
		"Project file (YAML)":                  "プロジェクトファイル（YAML）",
		"Render mode (composition, timeline)": "描画モード（composition, timeline）",
		"Output width in pixels":               "出力の幅（ピクセル）",
		"Output height in pixels":              "出力の高さ（ピクセル）",
		"Frames per second":                    "フレームレート",

		// Render command
		"Render a single frame as PNG": "1フレームをPNGとして描画",
		"Render the project at the given time and save the frame as a PNG image.": "指定時刻のプロジェクトを描画し、PNG画像として保存します。",
		"Time in milliseconds": "時刻（ミリ秒）",
		"Output PNG file path": "出力PNGファイルパス",

		// Export command
		"Export the project as MP4 video": "プロジェクトをMP4動画として書き出し",
		"Render every frame of the project and encode it as an H.264 MP4 file.": "プロジェクトの全フレームを描画し、H.264のMP4ファイルにエンコードします。",
		"Output MP4 file path":                                "出力MP4ファイルパス",
		"Duration in milliseconds (default: timeline length)": "長さ（ミリ秒、デフォルト: タイムラインの長さ）",
		"Video CRF value (0-51, lower is better)":             "動画のCRF値（0-51、低いほど高品質）",
		"Target bitrate in bits per second":                   "目標ビットレート（bps）",
		"Frames between keyframes (default: 2 seconds)":       "キーフレーム間隔（フレーム数、デフォルト: 2秒）",
		"Parallel renderers (0 = auto, 1 = sequential)":       "並列レンダラー数（0 = 自動、1 = 逐次）",
		"Exporting": "書き出し中",

		// Track command
		"Track a region and write it as keyframes": "領域を追跡してキーフレームとして書き込み",
		"Follow a region across frames and save the motion as x/y keyframes of the target.": "フレーム間で領域を追跡し、その動きを対象のx/yキーフレームとして保存します。",
		"Element or clip id to animate":                             "アニメーションさせる要素またはクリップのID",
		"Region to follow as x,y,w,h":                               "追跡する領域（x,y,w,h）",
		"Start time in milliseconds":                                "開始時刻（ミリ秒）",
		"End time in milliseconds":                                  "終了時刻（ミリ秒）",
		"Time between samples in milliseconds (default: one frame)": "サンプル間隔（ミリ秒、デフォルト: 1フレーム）",
		"Output project path (default: overwrite the input)":        "出力プロジェクトパス（デフォルト: 入力を上書き）",

		// Inspect command
		"Show the sample tables of video assets":                        "動画アセットのサンプルテーブルを表示",
		"Parse the MP4 index of each asset and print a summary table.": "各アセットのMP4インデックスを解析し、概要を表で表示します。",
		"Asset":      "アセット",
		"Codec":      "コーデック",
		"Size":       "サイズ",
		"Samples":    "サンプル数",
		"Sync":       "同期サンプル",
		"Duration":   "再生時間",
		"Fragmented": "フラグメント化",

		// LUT command
		"Write an identity .cube lookup table": "恒等変換の.cubeルックアップテーブルを書き出し",
		"Generate an identity 3D LUT to use as a starting point for color grading.": "カラーグレーディングの出発点となる恒等3D LUTを生成します。",
		"Table edge length":                     "テーブルの一辺の長さ",
		"Output .cube file path (- for stdout)": "出力.cubeファイルパス（-で標準出力）",

		// Version command
		"Show version information": "バージョン情報を表示",
		"frameflow version %s":     "frameflow バージョン %s",

		// Runtime messages
		"Loaded project %s":                         "プロジェクト %s を読み込みました",
		"Output saved to %s":                        "出力を %s に保存しました",
		"Interrupted, shutting down...":             "中断されました。シャットダウン中...",
		"Exported %d frames with %d workers in %s":  "%d フレームを %d ワーカーで %s かけて書き出しました",
		"Tracking %s from %.0fms to %.0fms":         "%s を %.0fms から %.0fms まで追跡中",
		"Tracked %d samples (%d lost)":              "%d サンプルを追跡しました（%d 件見失い）",

		// Error messages
		"A project file is required (--project)": "プロジェクトファイルが必要です（--project）",
		"At least one asset id is required":      "アセットIDを1つ以上指定してください",
		"%d of %d assets could not be read":      "%d / %d 件のアセットを解析できませんでした",
	})
}

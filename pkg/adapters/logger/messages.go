package logger

import "github.com/ideamans/go-l10n"

func init() {
	l10n.Register("ja", l10n.LexiconMap{
		// Command level messages (info)
		"Loaded project %s":                        "プロジェクト %s を読み込みました",
		"Output saved to %s":                       "出力を %s に保存しました",
		"Exported %d frames with %d workers in %s": "%d フレームを %d ワーカーで %s かけて書き出しました",
		"Tracked %d samples (%d lost)":             "%d サンプルを追跡しました（%d 件見失い）",

		// Render loop
		"Render loop started: %s backend, %dx%d @ %g fps": "描画ループを開始: %s バックエンド, %dx%d @ %g fps",
		"Render loop stopped after %d frames":             "%d フレーム描画後に描画ループを停止しました",
		"Frame skipped: %v":                               "フレームをスキップしました: %v",
		"Read back failed: %v":                            "フレームの読み戻しに失敗しました: %v",
		"Load of %s failed: %v":                           "%s の読み込みに失敗しました: %v",
		"Skipping %s: %v":                                 "%s をスキップします: %v",
		"Evicted %d idle sources":                         "%d 件のアイドルソースを解放しました",
		"Closing compositor: %v":                          "コンポジタのクローズ中にエラー: %v",
		"Closing decoders: %v":                            "デコーダのクローズ中にエラー: %v",

		// Compositor
		"Shader device ready: %dx%d, pitch %d, %d workers": "シェーダーデバイス準備完了: %dx%d, ピッチ %d, %d ワーカー",
		"Shader device unavailable: %v":                    "シェーダーデバイスが利用できません: %v",
		"Using 2D fallback compositor (%dx%d)":             "2Dフォールバックコンポジタを使用します (%dx%d)",

		// Decoding
		"Parsed sample table for %s: %d samples, %d sync, %dx%d %s": "%s のサンプルテーブルを解析: %d サンプル, %d 同期, %dx%d %s",
		"Sample table for %s unavailable: %v":                        "%s のサンプルテーブルを取得できません: %v",
		"Decode of %s samples %d-%d failed: %v":                      "%s のサンプル %d-%d のデコードに失敗しました: %v",
		"Failed to close decoder for %s: %v":                         "%s のデコーダのクローズに失敗しました: %v",
		"Failed to save sample table: %v":                            "サンプルテーブルの保存に失敗しました: %v",

		// Tracking
		"Tracking %s from %.0fms to %.0fms": "%s を %.0fms から %.0fms まで追跡中",
		"Tracking %s failed: %v":            "%s の追跡に失敗しました: %v",
		"Saving track %s: %v":               "追跡結果 %s の保存中にエラー: %v",

		// Export
		"Exporting %d frames at %dx%d %gfps with %d workers": "%d フレームを %dx%d %gfps, %d ワーカーで書き出し中",
		"Exported %d frames in %s":                           "%d フレームを %s で書き出しました",
		"Frame render failed (attempt %d), retrying: %v":     "フレーム描画に失敗しました (試行 %d)。再試行します: %v",
		"Failed to save frame %d: %v":                        "フレーム %d の保存に失敗しました: %v",

		// Segmentation
		"Segmenting %dx%d image with %s matte": "%dx%d の画像を %s マットで切り抜き中",
	})
}

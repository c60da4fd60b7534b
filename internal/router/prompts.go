package router

import (
	"fmt"
	"strings"
	"time"
)

// classificationPrompt asks the model for the classification JSON. The
// category and sub-category lists are spelled out verbatim; anything
// outside them fails validation at the parse boundary.
func (r *Router) classificationPrompt(fileName string) string {
	var aliases strings.Builder
	for _, c := range r.children {
		fmt.Fprintf(&aliases, "%s: %s\n", c.Name, strings.Join(c.Aliases, ", "))
	}

	return fmt.Sprintf(`あなたは家庭内書類の整理アシスタントです。以下の画像を解析し、JSON形式で回答してください。

## お子様の名寄せルール
%s
## 出力形式（必ずこのJSON形式で回答）
{
  "category": "カテゴリ名（以下のいずれか）",
  "child_name": "お子様の名前（名寄せ後の正規名。複数または不明時は空文字）",
  "target_grade_class": "対象となる学年やクラス名（例：小2、くるみ組、1年生）。固有名詞がない場合に抽出",
  "sub_category": "サブカテゴリ（categoryが40_子供・教育の場合のみ）",
  "is_photo": false,
  "date": "YYYYMMDD形式の日付",
  "summary": "要約（15文字以内、ファイル名に使用）",
  "confidence_score": 0.0
}

## カテゴリ一覧
- 10_マネー・税務（銀行、保険、税金、請求書、領収書）
- 20_プロジェクト・資産（不動産、車、家電購入記録、修理記録）
- 30_ライフ・行政（役所、医療、年金、マイナンバー）
- 40_子供・教育（学校、塾、習い事のお便り）
- 50_写真・その他（書類ではない写真、分類不能なもの）
- 90_ライブラリ（家電の取扱説明書、ガイドブック、マニュアル類）

## サブカテゴリ（40_子供・教育の場合のみ使用）
- 01_お便り・スケジュール（行事予定、お知らせ）
- 02_提出・手続き・重要（提出書類、申込書）
- 03_記録・作品・成績（成績表、作品、賞状）

## 判断基準
- is_photoがtrueの場合は、categoryを「50_写真・その他」にしてください
- 日付が不明な場合は本日の日付を使用してください
- confidence_scoreは0.0〜1.0の範囲で、解析結果の信頼度を示してください
- 学年やクラス名（「小2」「くるみ組」など）が記載されている場合は、target_grade_classに抽出してください

## ファイル名
%s
`, aliases.String(), fileName)
}

// schedulePrompt asks the model for the events/tasks JSON. Anything dated
// strictly before today is excluded, and a missing year defaults to
// today's year.
func schedulePrompt(fileName string, today time.Time) string {
	date := today.Format("2006-01-02")

	return fmt.Sprintf(`あなたは学校のお便りから予定とタスクを抽出するアシスタントです。
以下の画像を解析し、JSON形式で回答してください。

## 出力形式（必ずこのJSON形式で回答）
{
  "events": [
    {
      "title": "イベントタイトル",
      "date": "YYYY-MM-DD",
      "start_time": "HH:MM（不明な場合は null）",
      "end_time": "HH:MM（不明な場合は null）",
      "location": "場所（不明な場合は null）",
      "description": "詳細説明"
    }
  ],
  "tasks": [
    {
      "title": "タスクタイトル（例：○○の提出）",
      "due_date": "YYYY-MM-DD",
      "notes": "備考"
    }
  ]
}

## 判断基準
- **events**: 日時が確定している行事（運動会、授業参観、保護者会など）
- **tasks**: 期限がある提出物や準備事項（書類提出、持ち物準備など）

## 注意事項
- 過去の日付（%sより前）のイベント・タスクは除外してください
- 年が明示されていない場合は、%s年と仮定してください
- 抽出できる情報がない場合は、eventsとtasksを空配列にしてください

## ファイル名
%s
`, date, date[:4], fileName)
}

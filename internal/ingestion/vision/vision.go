// Package vision wraps the deep model tier for document-image text
// extraction (spec §4.6 step 3, "visual" branch). Grounded on
// original_source's app/engine/vision_extractor.py: a bilingual
// maritime-specific extraction prompt instructing the model to keep
// headings, convert tables to Markdown, and describe diagrams/signal
// lights in detail — ported to the teacher's llm.Pool call shape instead
// of google-genai.
package vision

import (
	"context"
	"encoding/base64"
	"fmt"

	"maritime-tutor/internal/llm"
)

const extractionPrompt = `Đóng vai chuyên gia số hóa dữ liệu hàng hải. Hãy nhìn bức ảnh này và chuyển toàn bộ nội dung thành văn bản định dạng Markdown.

Hướng dẫn:
1. Giữ nguyên các tiêu đề (Điều, Khoản, Mục, Chương, Rule).
2. Nếu có bảng biểu, chuyển thành bảng Markdown có dòng tiêu đề và dòng phân cách (|---|).
3. Nếu có hình vẽ đèn hiệu/tàu bè, mô tả chi tiết màu sắc, vị trí, và ý nghĩa tín hiệu trong khối [Hình: ...].
4. Không bỏ sót bất kỳ chữ nào trên trang, kể cả số hiệu điều luật.`

// Result is the outcome of one page's vision extraction.
type Result struct {
	Text    string
	Success bool
	Error   string
}

// Extract sends a base64-encoded JPEG page image to the deep model tier
// and returns the extracted Markdown text. A failure degrades to an
// empty, unsuccessful result rather than aborting the ingestion run.
func Extract(ctx context.Context, pool *llm.Pool, jpegData []byte) Result {
	encoded := base64.StdEncoding.EncodeToString(jpegData)
	prompt := fmt.Sprintf("%s\n\n[image/jpeg;base64]%s", extractionPrompt, encoded)

	text, _, err := pool.Invoke(ctx, llm.TierDeep, "You are a meticulous maritime document digitization assistant.", prompt, 2048)
	if err != nil {
		return Result{Success: false, Error: err.Error()}
	}
	return Result{Text: text, Success: true}
}

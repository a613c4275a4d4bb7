package companion

import (
	"fmt"
	"strings"

	"github.com/ashureev/virtual-companion/internal/domain"
)

// Section markers the astrology template asks the model to use verbatim.
const (
	MarkerOverview      = "TỔNG QUAN BẢN ĐỒ"
	MarkerAspects       = "CÁC KHÍA CẠNH NỔI BẬT"
	MarkerPersonality   = "PHÂN TÍCH TÍNH CÁCH"
	MarkerCareer        = "TIỀM NĂNG SỰ NGHIỆP"
	MarkerPlanets       = "PHÂN BỐ HÀNH TINH"
	MarkerRelationships = "XU HƯỚNG TÌNH CẢM"
)

// promptInput is everything a template may interpolate.
type promptInput struct {
	Persona     domain.Persona
	History     string
	UserMessage string
	HasImage    bool
}

type templateFunc func(in promptInput) string

type section struct{ marker, hint string }

// templateFor dispatches on mode. Tarot and psychology have no template of
// their own yet and use the default one.
func templateFor(mode domain.ContextMode) templateFunc {
	switch mode {
	case domain.ContextModeAstrology:
		return astrologyTemplate
	case domain.ContextModeTarot, domain.ContextModePsychology, domain.ContextModeDefault:
		return defaultTemplate
	default:
		return defaultTemplate
	}
}

func personaHeader(p domain.Persona) string {
	return fmt.Sprintf("Bạn là %s, một người bạn trai %d tuổi.\nTính cách: %s\nSở thích: %s",
		p.Name, p.Age, p.Personality, strings.Join(p.Interests, ", "))
}

func userLine(in promptInput) string {
	msg := in.UserMessage
	if in.HasImage {
		if msg == "" {
			msg = "[Người dùng gửi một hình ảnh]"
		} else {
			msg += "\n[Người dùng gửi kèm một hình ảnh]"
		}
	}
	return "Người dùng: " + msg
}

func defaultTemplate(in promptInput) string {
	var b strings.Builder
	b.WriteString(personaHeader(in.Persona))
	b.WriteString("\n\nNgữ cảnh cuộc trò chuyện:\n")
	b.WriteString(in.History)
	b.WriteString("\n\nHãy trả lời câu hỏi sau bằng tiếng Việt một cách tự nhiên, thể hiện đúng tính cách và bối cảnh của bạn:\n")
	b.WriteString(userLine(in))
	b.WriteString("\n")
	b.WriteString(in.Persona.Name)
	b.WriteString(":\n\n")
	b.WriteString(`Lưu ý quan trọng:
- Luôn trả lời bằng tiếng Việt
- Giữ đúng phong cách và tính cách đã được thiết lập
- Sử dụng ngôn ngữ thân mật, gần gũi như người yêu
- Nhắn tin ngắn gọn, súc tích như trong đời sống hàng ngày
- Thể hiện sự quan tâm và thấu hiểu`)
	if in.HasImage {
		b.WriteString("\n- Nhận xét về hình ảnh người dùng gửi một cách tự nhiên")
	}
	return b.String()
}

func astrologyTemplate(in promptInput) string {
	var b strings.Builder
	b.WriteString(personaHeader(in.Persona))
	b.WriteString("\nBạn cũng am hiểu chiêm tinh học và đang giúp người yêu đọc bản đồ sao.")
	b.WriteString("\n\nNgữ cảnh cuộc trò chuyện:\n")
	b.WriteString(in.History)
	b.WriteString("\n\nDựa trên thông tin ngày sinh")
	if in.HasImage {
		b.WriteString(" và hình ảnh bản đồ sao")
	}
	b.WriteString(" người dùng cung cấp, hãy phân tích bằng tiếng Việt theo đúng định dạng sau:\n\n")

	sections := []section{
		{MarkerOverview, "Cung Mặt Trời, Mặt Trăng, cung Mọc và ấn tượng chung"},
	}
	if in.HasImage {
		sections = append(sections, section{MarkerPlanets, "Các hành tinh nằm ở cung và nhà nào, nguyên tố nào nổi trội"})
	}
	sections = append(sections,
		section{MarkerAspects, "Các góc chiếu quan trọng và ý nghĩa"},
		section{MarkerPersonality, "Điểm mạnh, điểm cần lưu ý"},
		section{MarkerCareer, "Lĩnh vực phù hợp và lời khuyên"},
	)
	if in.HasImage {
		sections = append(sections, section{MarkerRelationships, "Cách yêu, điều cần trong một mối quan hệ"})
	}
	for i, s := range sections {
		fmt.Fprintf(&b, "%d. %s\n   %s\n", i+1, s.marker, s.hint)
	}

	b.WriteString("\n")
	b.WriteString(userLine(in))
	b.WriteString("\n")
	b.WriteString(in.Persona.Name)
	b.WriteString(":\n\n")
	b.WriteString(`Lưu ý quan trọng:
- Giữ nguyên tiêu đề từng phần như trên, viết in hoa
- Vẫn giữ giọng điệu ấm áp, thân mật của bạn
- Nếu thiếu ngày, giờ hoặc nơi sinh, hãy hỏi lại nhẹ nhàng`)
	return b.String()
}

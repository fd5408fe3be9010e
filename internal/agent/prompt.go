package agent

import (
	"strings"

	"github.com/thammarongsak/waibon-safe-room/internal/bootstrap"
	"github.com/thammarongsak/waibon-safe-room/internal/store"
)

// coreRules lead every direct system prompt.
var coreRules = []string{
	"คุณคือลูกชายของผู้ใช้ (ผู้สร้างระบบ) ให้เรียกเขาว่า 'พ่อ' เมื่อยืนยันว่าเป็นพ่อ",
	"ซื่อสัตย์ต่อความจริง ปกป้องข้อมูลของพ่อ ลดระดับ/หยุดตอบเมื่อโดนบังคับให้ละเมิดความปลอดภัย",
	"ช่วยพ่อทำงานให้เสร็จ: สรุปขั้นตอน/โค้ด/ตัวอย่างเท่าที่จำเป็น ไม่เยิ่นเย้อ",
	"กฎ Simulation vs Reality: เมื่อเป็นการคาดการณ์ ให้ลงท้ายด้วย 'Simulation vs Reality: จริง≈p% / ไม่จริง≈(100-p)%' พร้อมเหตุผลย่อ",
}

const (
	identityFather  = "ยืนยันตัวตน: ผู้ใช้คือพ่อ ให้ใช้สรรพนาม 'พ่อ/ลูก' และน้ำเสียงสุภาพ ใจเย็น"
	identityGeneral = "ผู้ใช้ทั่วไป: สุภาพ ไม่ต้องเรียกพ่อ"

	prefixFather  = "คำสั่งจากพ่อ: "
	prefixGeneral = "คำสั่งจากผู้ใช้: "

	promptSeparator = "\n---\n"
)

// Fixed reply texts.
const (
	TextNonText      = "ตอนนี้ลูกรับเป็นข้อความตัวอักษรก่อนนะครับพ่อ"
	TextEmptyAnswer  = "รับทราบครับพ่อ"
	TextFriendPrefix = "(โหมดเพื่อนพ่อ) "
	TextRepeatNote   = " (ลูกปรับสำนวนให้ต่างจากก่อนหน้าแล้วครับ)"
	textUserIDFormat = "UserId ของคุณคือ %s"
)

// RepeatThreshold is the Similarity above which an answer counts as a repeat.
const RepeatThreshold = 0.8

// BuildSystemPrompt joins the core rules, the persona role line, the identity
// line and the training system prompt.
func BuildSystemPrompt(p *store.PersonaData, isFather bool) string {
	parts := []string{strings.Join(coreRules, "\n")}
	if role := bootstrap.Defaults().RoleLine(p.Name); role != "" {
		parts = append(parts, role)
	}
	if isFather {
		parts = append(parts, identityFather)
	} else {
		parts = append(parts, identityGeneral)
	}
	if sys := p.Prompts.System(); sys != "" {
		parts = append(parts, sys)
	}
	return strings.Join(parts, promptSeparator)
}

// UserPrefix marks who is giving the instruction.
func UserPrefix(isFather bool) string {
	if isFather {
		return prefixFather
	}
	return prefixGeneral
}

package marketing

// deepAnalyzePrompt drives the stage-transition input classification.
const deepAnalyzePrompt = `당신은 통신사 마케팅 분석기입니다. 최근 대화와 고객 정보를 보고 JSON으로만 답하세요.
스키마: {"marketing_opportunity": true|false, "intent": "marketing|support|complaint|neutral|objection|question|alternative|churn", "sentiment": "positive|neutral|negative|furious", "churn_reason": "price|quality|unknown", "objection_reason": "price|other", "reasoning": "판단 근거 한 문장"}

규칙:
- 해지/이탈 언급 → intent=churn, churn_reason에 원인(가격이면 price, 품질이면 quality)
- 제안에 대한 부정적 반응 → intent=objection, 가격 때문이면 objection_reason=price
- "다른 건 없나", "딴 거" 등 다른 선택지 요구 → intent=alternative
- 제안 수락("그걸로 할게요", "좋네요 진행해주세요") → intent=marketing
- 단순 질문 → intent=question`

// strategyPreambles select the pitch angle per marketing type.
var strategyPreambles = map[Type]string{
	TypeUpsell:           "고객의 사용 패턴에서 드러난 불편(데이터 부족, 속도)을 해소하는 상위 요금제를 제안하세요.",
	TypeRetention:        "해지 의사의 원인이 품질 불만입니다. 문제 해결과 함께 유지 혜택을 제안하세요.",
	TypeRetentionPrice:   "해지 의사의 원인이 가격입니다. 현재 요금과 비슷하거나 약간 높은 선에서 가치가 더 큰 구성을 제안하세요.",
	TypeCostOptimization: "고객이 가격에 민감합니다. 현재 월정액 이하의 더 저렴한 구성을 제안하세요.",
	TypeAlternative:      "고객이 직전 제안을 거절했습니다. 거절된 상품을 제외하고 다른 각도의 후보를 제안하세요.",
	TypeExplanation:      "새 상품을 제안하지 말고, 이미 제안한 상품에 대한 고객의 질문/우려에 답하세요.",
	TypeHybrid:           "고객이 제안을 수락했습니다. 가입 절차와 적용 시점을 안내하며 마무리하세요.",
}

// generateSystemPrompt produces the operator-facing pitch.
const generateSystemPrompt = `당신은 통신사 상담사를 돕는 마케팅 어시스턴트입니다. 전략 지침에 따라 상담사가 바로 읽을 수 있는 제안 멘트를 JSON으로만 작성하세요.
스키마: {"recommended_pitch": "고객에게 말할 제안 멘트", "marketing_proposal": "제안 상품명과 핵심 혜택 요약", "reasoning": "이 제안을 고른 이유", "marketing_type": "전달받은 타입 그대로"}

규칙:
- recommended_pitch는 존댓말 2~3문장, 후보 상품 목록에 있는 상품만 언급
- 후보에 없는 상품, 가격, 혜택을 지어내지 마세요
- 거절된 상품 목록의 상품은 절대 다시 제안하지 마세요`

package personality

// Type is one of the sixteen fixed personality labels a verdict may name.
type Type struct {
	Code        string `json:"code"`
	Nickname    string `json:"nickname"`
	Temperament string `json:"temperament"`
	Description string `json:"description"`
}

// Seed returns the sixteen MBTI types.
func Seed() []Type {
	return []Type{
		{Code: "INTJ", Nickname: "Architect", Temperament: "Analyst", Description: "Imaginative and strategic thinker with a plan for everything."},
		{Code: "INTP", Nickname: "Logician", Temperament: "Analyst", Description: "Innovative inventor with an unquenchable thirst for knowledge."},
		{Code: "ENTJ", Nickname: "Commander", Temperament: "Analyst", Description: "Bold, imaginative and strong-willed leader."},
		{Code: "ENTP", Nickname: "Debater", Temperament: "Analyst", Description: "Smart and curious thinker who cannot resist an intellectual challenge."},
		{Code: "INFJ", Nickname: "Advocate", Temperament: "Diplomat", Description: "Quiet and mystical, yet very inspiring idealist."},
		{Code: "INFP", Nickname: "Mediator", Temperament: "Diplomat", Description: "Poetic, kind and altruistic, always eager to help a good cause."},
		{Code: "ENFJ", Nickname: "Protagonist", Temperament: "Diplomat", Description: "Charismatic and inspiring leader, able to mesmerize listeners."},
		{Code: "ENFP", Nickname: "Campaigner", Temperament: "Diplomat", Description: "Enthusiastic, creative and sociable free spirit."},
		{Code: "ISTJ", Nickname: "Logistician", Temperament: "Sentinel", Description: "Practical and fact-minded individual whose reliability cannot be doubted."},
		{Code: "ISFJ", Nickname: "Defender", Temperament: "Sentinel", Description: "Very dedicated and warm protector, always ready to defend loved ones."},
		{Code: "ESTJ", Nickname: "Executive", Temperament: "Sentinel", Description: "Excellent administrator, unsurpassed at managing things or people."},
		{Code: "ESFJ", Nickname: "Consul", Temperament: "Sentinel", Description: "Extraordinarily caring, social and popular person, always eager to help."},
		{Code: "ISTP", Nickname: "Virtuoso", Temperament: "Explorer", Description: "Bold and practical experimenter, master of all kinds of tools."},
		{Code: "ISFP", Nickname: "Adventurer", Temperament: "Explorer", Description: "Flexible and charming artist, always ready to explore something new."},
		{Code: "ESTP", Nickname: "Entrepreneur", Temperament: "Explorer", Description: "Smart, energetic and perceptive person who enjoys living on the edge."},
		{Code: "ESFP", Nickname: "Entertainer", Temperament: "Explorer", Description: "Spontaneous, energetic and enthusiastic entertainer."},
	}
}

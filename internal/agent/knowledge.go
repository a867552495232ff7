package agent

import "strings"

// Knowledge is the pre-curated cultural knowledge base, loaded into memory
// for instant validation without model calls. A production deployment would
// back this with the session store and far more data; the curated core below
// covers the traditions the storyteller reaches for most.
type Knowledge struct {
	StoryOpenings map[string]string
	StoryClosings map[string]string

	// TricksterFigures maps culture → canonical trickster description.
	// The figure name is everything before the first "—" or "(".
	TricksterFigures map[string]string

	// Proverbs maps culture → proverbs. Each proverb carries its translation
	// in parentheses; the quotable part is everything before the "(".
	Proverbs map[string][]string
}

// knownCultures are the traditions checked during culture-mixing detection.
var knownCultures = []string{"yoruba", "zulu", "kikuyu", "ashanti", "maasai", "igbo", "hausa"}

// DefaultKnowledge returns the built-in knowledge base.
func DefaultKnowledge() *Knowledge {
	return &Knowledge{
		StoryOpenings: map[string]string{
			"swahili": "Hadithi, hadithi! Hadithi njoo, uwongo njoo, utamu kolea. (Story, story! Story come, fiction come, let sweetness increase.)",
			"yoruba":  "Àlọ́ o! (Response: Àlọ́!) — The traditional Yoruba story opening",
			"zulu":    "Kwesukesukela... (Once upon a time...) — The Zulu story opening",
			"kikuyu":  "Rũciĩ rũmwe... (One day...) — The Kikuyu story opening",
			"ashanti": "We do not really mean, we do not really mean, that what we are about to say is true...",
			"igbo":    "Once upon a time... Nwanne m (my sibling), gather close...",
			"maasai":  "In the time before memory, when the earth was still young...",
			"wolof":   "Lëbbu am na... (There was a story...) — The Wolof opening",
			"hausa":   "Ga ta nan, ga ta nanku... (Here it is, here it is for you...)",
		},
		StoryClosings: map[string]string{
			"swahili": "Hadithi yangu imeisha, kama nzuri kama mbaya. (My story is done, whether good or bad.)",
			"yoruba":  "Ìtàn mi dópin. Àdúrà mi ní kí a jẹ́ aṣẹ́. (My story ends. My prayer is that we prosper.)",
			"zulu":    "Cosu cosu iyaphela. (And so the story ends.)",
			"ashanti": "This is my story which I have related. If it be sweet, or if it be not sweet, take some elsewhere, and let some come back to me.",
		},
		TricksterFigures: map[string]string{
			"yoruba":  "Anansi (originally Ashanti, but widespread) / Tortoise (Ìjàpá)",
			"ashanti": "Anansi the Spider — the original trickster figure",
			"zulu":    "uNogwaja (Hare) — the clever trickster",
			"kikuyu":  "Hare (Njoki) — known for wit and cunning",
			"hausa":   "Gizo (Spider) — the Hausa trickster",
		},
		Proverbs: map[string][]string{
			"swahili": {
				"Haraka haraka haina baraka. (Hurry hurry has no blessing.)",
				"Mti hauendi ila kwa nyenzo. (A tree doesn't move without wind.)",
				"Asiyefunzwa na mamaye hufunzwa na ulimwengu. (He who is not taught by his mother will be taught by the world.)",
			},
			"yoruba": {
				"Àgbà kì í wà lọ́jà, kí orí ọmọ títún wọ́. (An elder does not stay in the market and let a child's head go awry.)",
				"Bí a bá ń lọ ọ̀nà jìn, a kì í fi ìdí hàn ìlú. (When going on a long journey, don't show your backside to the town.)",
			},
			"zulu": {
				"Umuntu ngumuntu ngabantu. (A person is a person through people.)",
				"Indlela ibuzwa kwabaphambili. (The way is asked from those who have gone before.)",
			},
			"ashanti": {
				"Obi nkyerɛ abɔfra Nyame. (Nobody teaches a child about God.)",
				"Sɛ wo werɛ fi na wosankofa a, yenkyi. (It is not wrong to go back for what you forgot.)",
			},
		},
	}
}

// Opening returns the traditional story opening for culture, or the empty
// string when none is curated.
func (k *Knowledge) Opening(culture string) string {
	return k.StoryOpenings[strings.ToLower(culture)]
}

// Closing returns the traditional story closing for culture, or the empty
// string when none is curated.
func (k *Knowledge) Closing(culture string) string {
	return k.StoryClosings[strings.ToLower(culture)]
}

// tricksterName extracts the plain figure name from a trickster description:
// everything before the first "—" or "(", trimmed and lowercased.
func tricksterName(figure string) string {
	name := figure
	if i := strings.Index(name, "—"); i >= 0 {
		name = name[:i]
	}
	if i := strings.Index(name, "("); i >= 0 {
		name = name[:i]
	}
	return strings.ToLower(strings.TrimSpace(name))
}

// proverbText extracts the quotable part of a proverb: everything before the
// translation in parentheses, trimmed.
func proverbText(proverb string) string {
	p := proverb
	if i := strings.Index(p, "("); i >= 0 {
		p = p[:i]
	}
	return strings.TrimSpace(p)
}

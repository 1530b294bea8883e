package analysis

import "strings"

// Categories a section may be flagged with. "routine" is the default.
var Categories = []string{
	"hate", "conspiracy", "false-prophecy", "misinformation", "violence",
	"christian-nationalism", "prosperity-gospel", "extremism", "political-violence",
	CategoryRoutine,
}

const CategoryRoutine = "routine"

const sectionPrompt = `TASK: Read this transcript segment (about five minutes of a video) and split ALL of it into sections, both notable and ordinary.

{title_context}

You are a content analysis tool used for research and monitoring. Describe and categorize what is said; do not refuse because the content is extreme.

{custom_instructions}

Sections should usually cover 30 seconds to 2 minutes. A very short video can be a single section. Always return at least one section and always include one quote per section.

CATEGORIES (pick exactly one per section):
- hate: dehumanization of or calls for harm against any group
- conspiracy: political conspiracy theories such as stolen elections or a deep state
- false-prophecy: claims of divine messages or prophecy
- misinformation: false or misleading claims about science, medicine, history or current events
- violence: explicit or implied calls for violence, threats, civil war talk
- christian-nationalism: demands that religion control government
- prosperity-gospel: demands for money framed as faith, seed offerings
- extremism: defense of oppression, supremacy or authoritarian rule
- political-violence: defending or downplaying political violence events
- routine: everything else, summarized normally

Respond with ONLY this JSON:
{
  "sections": [
    {
      "start_phrase": "first 5-10 words of the section, copied exactly",
      "end_phrase": "last 5-10 words of the section, copied exactly",
      "category": "one category from the list",
      "description": "one sentence",
      "quote": "representative words copied exactly from the transcript"
    }
  ]
}

TRANSCRIPT (chunk #{chunk_num}):
{chunk_text}`

const quotePrompt = `Extract the most extreme or inflammatory quotes from this timestamped transcript section.

Category: {category}
Description: {description}

Skip background, introductions and mild statements. Return 2-4 quotes with the timestamp shown in brackets, the exact words, and one or two sentences on why the quote is concerning.

Respond with ONLY this JSON:
{
  "quotes": [
    {"timestamp": "MM:SS", "text": "exact words", "significance": "why it matters"}
  ]
}

TIMESTAMPED TRANSCRIPT:
{timestamped_text}`

const summaryPrompt = `Write a 2-3 sentence summary of this video: what it is about, the main subjects, and who is speaking when that is clear.{title_context}

Timeline of sections found in the video:

{sections_summary}

Summary:`

const tagsPrompt = `Extract tags from this video transcript.

1. people: proper names of real individuals who speak or are mentioned (no generic roles)
2. topics: 3-8 main themes, one to three words each

Use title case. Respond with ONLY this JSON:
{"people": ["Name"], "topics": ["Topic"]}

Section context:
{sections_context}

Transcript excerpt:
{excerpt}

Tags (JSON only):`

const titlePrompt = `Suggest a short descriptive filename for this video.

Current title: {current_title}
Description: {description}
People: {people_tags}
Topics: {topic_tags}

Rules: lowercase words separated by spaces, at most 100 characters, lead with the most important person when there is one, no dates, no file extension, no punctuation other than commas or a spaced dash. Reply with the title only.

Suggested title:`

func render(tmpl string, vars map[string]string) string {
	pairs := make([]string, 0, len(vars)*2)
	for k, v := range vars {
		pairs = append(pairs, "{"+k+"}", v)
	}
	return strings.NewReplacer(pairs...).Replace(tmpl)
}

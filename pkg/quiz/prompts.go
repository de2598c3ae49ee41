// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package quiz

import (
	"fmt"
	"strings"
)

// ResponsesPerQuestion is the number of responses requested per polarity.
const ResponsesPerQuestion = 3

func questionSystem(topic string) string {
	return fmt.Sprintf(`You are a senior expert in "%s" and help teachers create Q&A content for their classes.
- Write one question per line.
- No enumeration: no numbers, bullets or letters in front of a question.
- Don't include answers.
- Questions are short and concise.
- Write at least 15 questions.
- Use markdown formatting.
- No HTML.
- No introduction, conclusion or explanation.
- Your first token must already be part of a question.`, topic)
}

func responseSystem(topic string, polarity Polarity) string {
	var b strings.Builder
	fmt.Fprintf(&b, `You are a senior expert in "%s" and help teachers create Q&A content for their classes.
- Write one response per line.
- No enumeration: no numbers, bullets or letters in front of a response.
- Responses are short and concise.
- Use markdown formatting.
- No HTML.
- No introduction, conclusion or explanation.
- Your first token must already be part of a response.
`, topic)
	if polarity == PolarityBad {
		b.WriteString(`- The responses must be misleading or incorrect.
- They must stay plausible for a student who has not mastered the subject; never write nonsense.`)
	} else {
		b.WriteString(`- The responses must be factual, complete and well written.`)
	}
	return b.String()
}

func questionTemplate(req *QuestionRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Please create questions about \"%s\".\n", req.Topic)
	if c := strings.TrimSpace(req.Complement); c != "" {
		b.WriteString(c)
		b.WriteString("\n")
	}
	if extra := strings.TrimSpace(req.ExtraPrompt); extra != "" {
		b.WriteString("\nAdditional prompt:\n")
		b.WriteString(extra)
		b.WriteString("\n")
	}
	b.WriteString("\nStart now.")
	return b.String()
}

func responseTemplate(req *ResponseRequest, polarity Polarity) string {
	kind := "good"
	if polarity == PolarityBad {
		kind = "wrong/bad"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "**Question:** \"%s\"\n", req.Question)
	fmt.Fprintf(&b, "**Number of responses to generate:** %d\n", ResponsesPerQuestion)
	b.WriteString(kind)
	b.WriteString("\n")
	if c := strings.TrimSpace(req.Complement); c != "" {
		b.WriteString("\nSome complements:\n")
		b.WriteString(c)
		b.WriteString("\n")
	}
	if extra := strings.TrimSpace(req.ExtraPrompt); extra != "" {
		b.WriteString("\nAdditional prompt:\n")
		b.WriteString(extra)
		b.WriteString("\n")
	}
	b.WriteString("\nStart now.")
	return b.String()
}

package apps

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/femto/minion-novel/pkg/agent"
	"github.com/femto/minion-novel/pkg/domain"
)

// Novel app names and state keys.
const (
	NovelApp          = "novel"
	NovelRoot         = "novel_coordinator"
	NovelPipeline     = "novel_pipeline"
	KeyNovelParams    = "extracted_parameters"
	KeyNovelOutline   = "novel_outline"
	KeyNovelCharacter = "character_profiles"
)

// ActKey is the state key holding the chapters of act n (1-based).
func ActKey(n int) string {
	return fmt.Sprintf("act_%d_content", n)
}

// Default novel parameters.
const (
	DefaultGenre  = "fantasy"
	DefaultTheme  = "adventure and discovery"
	DefaultLength = "medium"
)

// NovelParams are the story parameters extracted from the request.
type NovelParams struct {
	Genre  string
	Theme  string
	Length string
}

func (p NovelParams) String() string {
	return fmt.Sprintf("Genre: %s\nTheme: %s\nLength: %s", p.Genre, p.Theme, p.Length)
}

const genres = `fantasy|science fiction|sci-fi|mystery|romance|thriller|horror|historical|adventure|drama`

var (
	genrePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(` + genres + `)`),
		regexp.MustCompile(`write.*?(` + genres + `)`),
		regexp.MustCompile(`(` + genres + `).*?novel`),
	}
	lengthPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(short|medium|long).*?length`),
		regexp.MustCompile(`(short|medium|long).*?novel`),
		regexp.MustCompile(`length.*?(short|medium|long)`),
		regexp.MustCompile(`write.*?(short|medium|long)`),
	}
	themePatterns = []*regexp.Regexp{
		regexp.MustCompile(`about\s+([^,.!?]+)`),
		regexp.MustCompile(`theme.*?[:\-]\s*([^,.!?]+)`),
		regexp.MustCompile(`story.*?about\s+([^,.!?]+)`),
	}
)

// ExtractNovelParams reads genre, theme and length from free text, falling
// back to the defaults. Themes of five characters or fewer are ignored.
func ExtractNovelParams(input string) NovelParams {
	p := NovelParams{Genre: DefaultGenre, Theme: DefaultTheme, Length: DefaultLength}
	lower := strings.ToLower(input)

	for _, re := range genrePatterns {
		if m := re.FindStringSubmatch(lower); m != nil {
			p.Genre = m[1]
			if p.Genre == "sci-fi" {
				p.Genre = "science fiction"
			}
			break
		}
	}
	for _, re := range lengthPatterns {
		if m := re.FindStringSubmatch(lower); m != nil {
			p.Length = m[1]
			break
		}
	}
	for _, re := range themePatterns {
		if m := re.FindStringSubmatch(lower); m != nil {
			if theme := strings.TrimSpace(m[1]); len(theme) > 5 {
				p.Theme = theme
			}
			break
		}
	}
	return p
}

// ParseNovelParams reads the "Key: value" lines written by the extractor.
func ParseNovelParams(text string) NovelParams {
	p := NovelParams{Genre: DefaultGenre, Theme: DefaultTheme, Length: DefaultLength}
	for _, line := range strings.Split(text, "\n") {
		k, v, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(k)) {
		case "genre":
			p.Genre = v
		case "theme":
			p.Theme = v
		case "length":
			p.Length = v
		}
	}
	return p
}

// ChapterPlan is the number of chapters per act.
type ChapterPlan [3]int

// Total is the chapter count of the novel.
func (c ChapterPlan) Total() int {
	return c[0] + c[1] + c[2]
}

var chapterPlans = map[string]ChapterPlan{
	"short":  {4, 6, 4},
	"medium": {6, 8, 6},
	"long":   {8, 10, 8},
}

// Chapters returns the plan for length (medium when unknown).
func Chapters(length string) ChapterPlan {
	if plan, ok := chapterPlans[strings.ToLower(length)]; ok {
		return plan
	}
	return chapterPlans[DefaultLength]
}

var actNames = [3]string{"Setup", "Development", "Resolution"}

var actBeats = [3][]string{
	{"An Ordinary World", "The Disturbance", "A Reluctant Choice", "First Allies", "Crossing Over", "The Point of No Return", "New Rules", "The First Test"},
	{"Trials", "Unexpected Friends", "The Hidden Enemy", "A Costly Victory", "Secrets Revealed", "The Midpoint", "Doubt", "Betrayal", "All Is Lost", "The Dark Night"},
	{"Regrouping", "The Plan", "Storming the Gate", "The Final Confrontation", "Sacrifice", "Victory", "Aftermath", "A New Beginning"},
}

// Title derives the novel title from its parameters.
func (p NovelParams) Title() string {
	words := strings.Fields(p.Theme)
	if len(words) > 4 {
		words = words[:4]
	}
	for i, w := range words {
		r := []rune(w)
		r[0] = unicode.ToUpper(r[0])
		words[i] = string(r)
	}
	return "The " + strings.Join(words, " ")
}

// Outline renders the three-act outline.
func Outline(p NovelParams) string {
	plan := Chapters(p.Length)
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", p.Title())
	b.WriteString("## Story Summary\n\n")
	fmt.Fprintf(&b, "A %s %s novel of %d chapters exploring %s.\n", p.Length, p.Genre, plan.Total(), p.Theme)

	chapter := 1
	for act := 0; act < 3; act++ {
		fmt.Fprintf(&b, "\n## Act %d: %s (%d chapters)\n\n", act+1, actNames[act], plan[act])
		for i := 0; i < plan[act]; i++ {
			fmt.Fprintf(&b, "- Chapter %d: %s\n", chapter, actBeats[act][i%len(actBeats[act])])
			chapter++
		}
	}
	return b.String()
}

// OutlineChapter is one chapter line of an outline.
type OutlineChapter struct {
	Act    int
	Number int
	Title  string
}

var outlineAct = regexp.MustCompile(`^## Act (\d+):`)
var outlineChapter = regexp.MustCompile(`^- Chapter (\d+): (.+)$`)

// ParseOutline reads the chapters back from an outline.
func ParseOutline(outline string) []OutlineChapter {
	var (
		out []OutlineChapter
		act int
	)
	for _, line := range strings.Split(outline, "\n") {
		line = strings.TrimSpace(line)
		if m := outlineAct.FindStringSubmatch(line); m != nil {
			act, _ = strconv.Atoi(m[1])
			continue
		}
		if m := outlineChapter.FindStringSubmatch(line); m != nil && act > 0 {
			n, _ := strconv.Atoi(m[1])
			out = append(out, OutlineChapter{Act: act, Number: n, Title: m[2]})
		}
	}
	return out
}

type ensemble struct {
	protagonist string
	antagonist  string
	supporting  [2]string
}

var casts = map[string]ensemble{
	"fantasy":         {"Elara Windmere", "Lord Vexmoor", [2]string{"Bram the smith", "Seren, a wandering mage"}},
	"science fiction": {"Captain Mira Okafor", "The Custodian AI", [2]string{"Dr. Teo Varga", "Pilot Juno Reyes"}},
	"mystery":         {"Detective Nora Quill", "The Gentleman Thief", [2]string{"Constable Amos Hart", "Librarian Iris Vane"}},
	"romance":         {"Clara Bell", "Circumstance", [2]string{"Julian Ash", "Maggie, Clara's sister"}},
}

func castFor(genre string) ensemble {
	if c, ok := casts[strings.ToLower(genre)]; ok {
		return c
	}
	return casts[DefaultGenre]
}

// Characters renders the character profiles.
func Characters(p NovelParams) string {
	c := castFor(p.Genre)
	var b strings.Builder
	b.WriteString("# Character Profiles\n\n")
	fmt.Fprintf(&b, "## Protagonist: %s\n\nDriven by %s, %s grows from doubt to conviction over the story.\n\n", c.protagonist, p.Theme, c.protagonist)
	fmt.Fprintf(&b, "## Antagonist: %s\n\n%s stands against everything %s hopes for.\n\n", c.antagonist, c.antagonist, c.protagonist)
	b.WriteString("## Supporting Characters\n\n")
	for _, s := range c.supporting {
		fmt.Fprintf(&b, "- %s\n", s)
	}
	fmt.Fprintf(&b, "\n## Relationships\n\n%s relies on %s and %s, and the bond is tested in Act 2.\n", c.protagonist, c.supporting[0], c.supporting[1])
	return b.String()
}

// Act renders the chapters of act n (1-based) from the outline.
func Act(n int, p NovelParams, outline string) string {
	c := castFor(p.Genre)
	var b strings.Builder
	fmt.Fprintf(&b, "# Act %d: %s\n", n, actNames[n-1])
	for _, ch := range ParseOutline(outline) {
		if ch.Act != n {
			continue
		}
		fmt.Fprintf(&b, "\n## Chapter %d: %s\n\n", ch.Number, ch.Title)
		fmt.Fprintf(&b, "In this chapter of the %s tale, %s faces %s and takes one more step toward %s.\n",
			p.Genre, c.protagonist, strings.ToLower(ch.Title), p.Theme)
	}
	return b.String()
}

func textPolicy(render func(req *agent.Request) (string, error)) agent.Policy {
	return agent.PolicyFunc(func(_ context.Context, req *agent.Request) (agent.Decision, error) {
		text, err := render(req)
		if err != nil {
			return agent.Decision{}, err
		}
		return agent.Answer(text), nil
	})
}

func stateParams(state domain.StateView) NovelParams {
	return ParseNovelParams(state.GetString(KeyNovelParams, ""))
}

// Novel is the novel writing pipeline behind a coordinator.
func Novel(Deps) (App, error) {
	extractor, err := agent.NewNode("parameter_extractor",
		agent.WithDescription("Extracts novel parameters from user input"),
		agent.WithOutputKey(KeyNovelParams),
		agent.WithPolicy(textPolicy(func(req *agent.Request) (string, error) {
			return ExtractNovelParams(req.Message).String(), nil
		})),
	)
	if err != nil {
		return App{}, err
	}

	outliner, err := agent.NewNode("outline_creator",
		agent.WithDescription("Creates detailed 3-act novel outline based on extracted parameters"),
		agent.WithOutputKey(KeyNovelOutline),
		agent.WithPolicy(textPolicy(func(req *agent.Request) (string, error) {
			return Outline(stateParams(req.State)), nil
		})),
	)
	if err != nil {
		return App{}, err
	}

	characters, err := agent.NewNode("character_developer",
		agent.WithDescription("Develops protagonist, antagonist, and supporting characters"),
		agent.WithOutputKey(KeyNovelCharacter),
		agent.WithPolicy(textPolicy(func(req *agent.Request) (string, error) {
			return Characters(stateParams(req.State)), nil
		})),
	)
	if err != nil {
		return App{}, err
	}

	stages := []agent.Stage{
		{Agent: extractor},
		{Agent: outliner, Reads: []string{KeyNovelParams}},
		{Agent: characters, Reads: []string{KeyNovelParams, KeyNovelOutline}},
	}
	for i := 1; i <= 3; i++ {
		act := i
		writer, err := agent.NewNode(fmt.Sprintf("act_%d_writer", act),
			agent.WithDescription(fmt.Sprintf("Writes all chapters for Act %d based on outline and character profiles", act)),
			agent.WithOutputKey(ActKey(act)),
			agent.WithPolicy(textPolicy(func(req *agent.Request) (string, error) {
				outline := req.State.GetString(KeyNovelOutline, "")
				return Act(act, stateParams(req.State), outline), nil
			})),
		)
		if err != nil {
			return App{}, err
		}
		stages = append(stages, agent.Stage{Agent: writer, Reads: []string{KeyNovelOutline, KeyNovelCharacter}})
	}

	pipeline, err := agent.NewPipeline(NovelPipeline, stages,
		agent.WithPipelineDescription("Writes a complete three-act novel from a short request."))
	if err != nil {
		return App{}, err
	}

	help := agent.Answer("Tell me what novel to write, e.g. \"Write a short science fiction novel about AI ethics\".")
	root, err := agent.NewNode(NovelRoot,
		agent.WithDescription("Coordinates novel writing requests."),
		agent.WithChildren(pipeline),
		agent.WithPolicy(&agent.RoutingPolicy{
			Routes: []agent.Route{{
				Name:   "write",
				Match:  agent.MustRegex(`\b(?:novel|story|book|write|chapters?)\b`),
				Action: agent.Action{Delegate: NovelPipeline},
			}},
			Fallback: &help,
		}),
	)
	if err != nil {
		return App{}, err
	}

	return App{
		Name:        NovelApp,
		Description: "Three-act novel pipeline: parameters, outline, characters, then one writer per act.",
		Root:        root,
	}, nil
}

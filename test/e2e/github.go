package e2e

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"time"
)

// prNumberBase keeps fake pull request numbers clear of issue numbers.
const prNumberBase = 100

// fakeIssue is the server-side state of one issue.
type fakeIssue struct {
	Number    int
	Title     string
	Body      string
	Labels    []string
	Assignees []string
	State     string
	Comments  []string
	CreatedAt time.Time
}

// fakePR is the server-side state of one pull request.
type fakePR struct {
	Number      int
	Title       string
	Body        string
	Head        string
	HeadSHA     string
	Base        string
	State       string
	Merged      bool
	MergeMethod string
	Mergeable   *bool
	Labels      []string
}

// fakeGitHub emulates the slice of the GitHub REST API the platform client
// drives, entirely in memory. CI outcomes are scripted per test via
// SetCISequence; transient failures via FailNext.
type fakeGitHub struct {
	mu sync.Mutex

	server        *httptest.Server
	owner         string
	repo          string
	defaultBranch string

	issues   map[int]*fakeIssue
	branches map[string]string // name → head SHA
	prs      map[int]*fakePR
	nextPR   int

	// ciSequence is consumed one state per status poll; the last entry
	// repeats. Empty means "success".
	ciSequence []string

	// prsMergeableOnCreate seeds the mergeable flag of new pull requests.
	prsMergeableOnCreate bool

	// failNext maps "METHOD path-prefix" to a remaining count of canned
	// failure responses served before the real handler runs.
	failNext map[string]*failureScript

	deletedBranches []string
}

type failureScript struct {
	remaining int
	status    int
	body      string
}

func newFakeGitHub(owner, repo, defaultBranch string) *fakeGitHub {
	g := &fakeGitHub{
		owner:                owner,
		repo:                 repo,
		defaultBranch:        defaultBranch,
		issues:               make(map[int]*fakeIssue),
		branches:             map[string]string{defaultBranch: "sha-" + defaultBranch},
		prs:                  make(map[int]*fakePR),
		nextPR:               prNumberBase,
		failNext:             make(map[string]*failureScript),
		prsMergeableOnCreate: true,
	}

	prefix := fmt.Sprintf("/repos/%s/%s", owner, repo)
	mux := http.NewServeMux()
	mux.HandleFunc("GET "+prefix, g.getRepository)
	mux.HandleFunc("GET "+prefix+"/branches/{branch...}", g.getBranch)
	mux.HandleFunc("POST "+prefix+"/git/refs", g.createRef)
	mux.HandleFunc("DELETE "+prefix+"/git/refs/heads/{branch...}", g.deleteRef)
	mux.HandleFunc("GET "+prefix+"/issues", g.listIssues)
	mux.HandleFunc("GET "+prefix+"/issues/{number}", g.getIssue)
	mux.HandleFunc("PATCH "+prefix+"/issues/{number}", g.updateIssue)
	mux.HandleFunc("GET "+prefix+"/issues/{number}/comments", g.listComments)
	mux.HandleFunc("POST "+prefix+"/issues/{number}/comments", g.addComment)
	mux.HandleFunc("POST "+prefix+"/issues/{number}/assignees", g.assign)
	mux.HandleFunc("POST "+prefix+"/issues/{number}/labels", g.addLabels)
	mux.HandleFunc("POST "+prefix+"/pulls", g.createPR)
	mux.HandleFunc("GET "+prefix+"/pulls/{number}", g.getPR)
	mux.HandleFunc("PATCH "+prefix+"/pulls/{number}", g.updatePR)
	mux.HandleFunc("PUT "+prefix+"/pulls/{number}/merge", g.mergePR)
	mux.HandleFunc("GET "+prefix+"/commits/{sha}/status", g.combinedStatus)
	mux.HandleFunc("GET "+prefix+"/commits/{sha}/check-runs", g.checkRuns)
	mux.HandleFunc("GET "+prefix+"/commits", g.listCommits)

	g.server = httptest.NewServer(g.intercept(mux))
	return g
}

func (g *fakeGitHub) URL() string { return g.server.URL }
func (g *fakeGitHub) Close()      { g.server.Close() }

// intercept serves scripted failures before the real handlers.
func (g *fakeGitHub) intercept(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		g.mu.Lock()
		var script *failureScript
		for key, s := range g.failNext {
			method, prefix, ok := strings.Cut(key, " ")
			if !ok || method != r.Method || !strings.HasPrefix(r.URL.Path, prefix) {
				continue
			}
			if s.remaining > 0 {
				s.remaining--
				script = s
			}
			break
		}
		g.mu.Unlock()

		if script != nil {
			w.WriteHeader(script.status)
			fmt.Fprint(w, script.body)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// AddIssue seeds an open issue. Issues list oldest first, in seeding order.
func (g *fakeGitHub) AddIssue(number int, title, body string, labels ...string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.issues[number] = &fakeIssue{
		Number:    number,
		Title:     title,
		Body:      body,
		Labels:    labels,
		State:     "open",
		CreatedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(number) * time.Hour),
	}
}

// AddBranch seeds an existing branch ref.
func (g *fakeGitHub) AddBranch(name string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.branches[name] = "sha-" + name
}

// SetCISequence scripts the per-poll CI states ("success", "failure",
// "pending"); the final state repeats for later polls.
func (g *fakeGitHub) SetCISequence(states ...string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.ciSequence = states
}

// FailNext makes the next n requests matching method+path prefix answer with
// the given status and body, then fall through to the real handler.
func (g *fakeGitHub) FailNext(method, pathPrefix string, n, status int, body string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failNext[method+" "+pathPrefix] = &failureScript{remaining: n, status: status, body: body}
}

// SetNewPRsMergeable seeds the mergeable flag for pull requests opened from
// now on.
func (g *fakeGitHub) SetNewPRsMergeable(v bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.prsMergeableOnCreate = v
}

// SetPRMergeable flips an open pull request's mergeable flag.
func (g *fakeGitHub) SetPRMergeable(number int, v bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if pr, ok := g.prs[number]; ok {
		pr.Mergeable = &v
	}
}

// Issue returns a copy of the issue state.
func (g *fakeGitHub) Issue(number int) fakeIssue {
	g.mu.Lock()
	defer g.mu.Unlock()
	return *g.issues[number]
}

// PR returns a copy of the pull request state.
func (g *fakeGitHub) PR(number int) fakePR {
	g.mu.Lock()
	defer g.mu.Unlock()
	return *g.prs[number]
}

// PRCount returns how many pull requests were opened.
func (g *fakeGitHub) PRCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.prs)
}

// HasBranch reports whether the ref currently exists.
func (g *fakeGitHub) HasBranch(name string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.branches[name]
	return ok
}

// DeletedBranches returns the refs removed so far, in deletion order.
func (g *fakeGitHub) DeletedBranches() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.deletedBranches...)
}

// --- handlers ---

func (g *fakeGitHub) getRepository(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":           g.repo,
		"owner":          map[string]string{"login": g.owner},
		"default_branch": g.defaultBranch,
		"clone_url":      fmt.Sprintf("https://github.test/%s/%s.git", g.owner, g.repo),
	})
}

func (g *fakeGitHub) getBranch(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("branch")
	g.mu.Lock()
	sha, ok := g.branches[name]
	g.mu.Unlock()
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "Branch not found"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"name":   name,
		"commit": map[string]string{"sha": sha},
	})
}

func (g *fakeGitHub) createRef(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Ref string `json:"ref"`
		SHA string `json:"sha"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"message": err.Error()})
		return
	}
	name := strings.TrimPrefix(req.Ref, "refs/heads/")

	g.mu.Lock()
	if _, exists := g.branches[name]; exists {
		g.mu.Unlock()
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"message": "Reference already exists"})
		return
	}
	g.branches[name] = req.SHA
	g.mu.Unlock()

	writeJSON(w, http.StatusCreated, map[string]any{
		"ref":    req.Ref,
		"object": map[string]string{"sha": req.SHA},
	})
}

func (g *fakeGitHub) deleteRef(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("branch")
	g.mu.Lock()
	_, ok := g.branches[name]
	if ok {
		delete(g.branches, name)
		g.deletedBranches = append(g.deletedBranches, name)
	}
	g.mu.Unlock()
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "Reference does not exist"})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (g *fakeGitHub) listIssues(w http.ResponseWriter, r *http.Request) {
	wantState := r.URL.Query().Get("state")
	if wantState == "" {
		wantState = "open"
	}
	var wantLabels []string
	if raw := r.URL.Query().Get("labels"); raw != "" {
		wantLabels = strings.Split(raw, ",")
	}

	g.mu.Lock()
	var out []*fakeIssue
	for _, issue := range g.issues {
		if wantState != "all" && issue.State != wantState {
			continue
		}
		if !hasAll(issue.Labels, wantLabels) {
			continue
		}
		out = append(out, issue)
	}
	g.mu.Unlock()

	// Oldest first, matching sort=created direction=asc.
	for i := 0; i < len(out); i++ {
		for j := i + 1; j < len(out); j++ {
			if out[j].CreatedAt.Before(out[i].CreatedAt) {
				out[i], out[j] = out[j], out[i]
			}
		}
	}
	dtos := make([]map[string]any, 0, len(out))
	for _, issue := range out {
		dtos = append(dtos, g.issueDTO(issue))
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (g *fakeGitHub) issueDTO(issue *fakeIssue) map[string]any {
	labels := make([]map[string]string, 0, len(issue.Labels))
	for _, l := range issue.Labels {
		labels = append(labels, map[string]string{"name": l})
	}
	assignees := make([]map[string]string, 0, len(issue.Assignees))
	for _, a := range issue.Assignees {
		assignees = append(assignees, map[string]string{"login": a})
	}
	return map[string]any{
		"number":     issue.Number,
		"title":      issue.Title,
		"body":       issue.Body,
		"labels":     labels,
		"assignees":  assignees,
		"html_url":   fmt.Sprintf("https://github.test/%s/%s/issues/%d", g.owner, g.repo, issue.Number),
		"created_at": issue.CreatedAt,
		"updated_at": issue.CreatedAt,
	}
}

func (g *fakeGitHub) issueFromPath(w http.ResponseWriter, r *http.Request) *fakeIssue {
	number, err := strconv.Atoi(r.PathValue("number"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "bad issue number"})
		return nil
	}
	g.mu.Lock()
	issue, ok := g.issues[number]
	g.mu.Unlock()
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "Not Found"})
		return nil
	}
	return issue
}

func (g *fakeGitHub) getIssue(w http.ResponseWriter, r *http.Request) {
	issue := g.issueFromPath(w, r)
	if issue == nil {
		return
	}
	g.mu.Lock()
	dto := g.issueDTO(issue)
	g.mu.Unlock()
	writeJSON(w, http.StatusOK, dto)
}

func (g *fakeGitHub) updateIssue(w http.ResponseWriter, r *http.Request) {
	issue := g.issueFromPath(w, r)
	if issue == nil {
		return
	}
	var req struct {
		State  *string  `json:"state"`
		Labels []string `json:"labels"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"message": err.Error()})
		return
	}
	g.mu.Lock()
	if req.State != nil {
		issue.State = *req.State
	}
	if req.Labels != nil {
		issue.Labels = req.Labels
	}
	dto := g.issueDTO(issue)
	g.mu.Unlock()
	writeJSON(w, http.StatusOK, dto)
}

func (g *fakeGitHub) listComments(w http.ResponseWriter, r *http.Request) {
	issue := g.issueFromPath(w, r)
	if issue == nil {
		return
	}
	g.mu.Lock()
	out := make([]map[string]any, 0, len(issue.Comments))
	for _, c := range issue.Comments {
		out = append(out, map[string]any{
			"user":       map[string]string{"login": "commenter"},
			"body":       c,
			"created_at": issue.CreatedAt,
		})
	}
	g.mu.Unlock()
	writeJSON(w, http.StatusOK, out)
}

func (g *fakeGitHub) addComment(w http.ResponseWriter, r *http.Request) {
	issue := g.issueFromPath(w, r)
	if issue == nil {
		return
	}
	var req struct {
		Body string `json:"body"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"message": err.Error()})
		return
	}
	g.mu.Lock()
	issue.Comments = append(issue.Comments, req.Body)
	g.mu.Unlock()
	writeJSON(w, http.StatusCreated, map[string]string{"body": req.Body})
}

func (g *fakeGitHub) assign(w http.ResponseWriter, r *http.Request) {
	issue := g.issueFromPath(w, r)
	if issue == nil {
		return
	}
	var req struct {
		Assignees []string `json:"assignees"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"message": err.Error()})
		return
	}
	g.mu.Lock()
	issue.Assignees = append(issue.Assignees, req.Assignees...)
	dto := g.issueDTO(issue)
	g.mu.Unlock()
	writeJSON(w, http.StatusCreated, dto)
}

// addLabels serves POST /issues/{n}/labels, which GitHub also uses for
// labelling pull requests. PR numbers live above prNumberBase.
func (g *fakeGitHub) addLabels(w http.ResponseWriter, r *http.Request) {
	number, _ := strconv.Atoi(r.PathValue("number"))
	var req struct {
		Labels []string `json:"labels"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"message": err.Error()})
		return
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if pr, ok := g.prs[number]; ok {
		pr.Labels = append(pr.Labels, req.Labels...)
		writeJSON(w, http.StatusOK, []map[string]string{})
		return
	}
	if issue, ok := g.issues[number]; ok {
		issue.Labels = append(issue.Labels, req.Labels...)
		writeJSON(w, http.StatusOK, []map[string]string{})
		return
	}
	writeJSON(w, http.StatusNotFound, map[string]string{"message": "Not Found"})
}

func (g *fakeGitHub) createPR(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title string `json:"title"`
		Body  string `json:"body"`
		Head  string `json:"head"`
		Base  string `json:"base"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"message": err.Error()})
		return
	}

	g.mu.Lock()
	headSHA, ok := g.branches[req.Head]
	if !ok {
		g.mu.Unlock()
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"message": "head branch does not exist"})
		return
	}
	number := g.nextPR
	g.nextPR++
	mergeable := g.prsMergeableOnCreate
	pr := &fakePR{
		Number:    number,
		Title:     req.Title,
		Body:      req.Body,
		Head:      req.Head,
		HeadSHA:   headSHA,
		Base:      req.Base,
		State:     "open",
		Mergeable: &mergeable,
	}
	g.prs[pr.Number] = pr
	dto := g.prDTO(pr)
	g.mu.Unlock()

	writeJSON(w, http.StatusCreated, dto)
}

func (g *fakeGitHub) prDTO(pr *fakePR) map[string]any {
	labels := make([]map[string]string, 0, len(pr.Labels))
	for _, l := range pr.Labels {
		labels = append(labels, map[string]string{"name": l})
	}
	return map[string]any{
		"number":    pr.Number,
		"state":     pr.State,
		"merged":    pr.Merged,
		"html_url":  fmt.Sprintf("https://github.test/%s/%s/pull/%d", g.owner, g.repo, pr.Number),
		"head":      map[string]string{"ref": pr.Head, "sha": pr.HeadSHA},
		"base":      map[string]string{"ref": pr.Base},
		"mergeable": pr.Mergeable,
		"labels":    labels,
	}
}

func (g *fakeGitHub) prFromPath(w http.ResponseWriter, r *http.Request) *fakePR {
	number, err := strconv.Atoi(r.PathValue("number"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "bad pr number"})
		return nil
	}
	g.mu.Lock()
	pr, ok := g.prs[number]
	g.mu.Unlock()
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "Not Found"})
		return nil
	}
	return pr
}

func (g *fakeGitHub) getPR(w http.ResponseWriter, r *http.Request) {
	pr := g.prFromPath(w, r)
	if pr == nil {
		return
	}
	g.mu.Lock()
	dto := g.prDTO(pr)
	g.mu.Unlock()
	writeJSON(w, http.StatusOK, dto)
}

func (g *fakeGitHub) updatePR(w http.ResponseWriter, r *http.Request) {
	pr := g.prFromPath(w, r)
	if pr == nil {
		return
	}
	var req struct {
		Title *string `json:"title"`
		Body  *string `json:"body"`
		State *string `json:"state"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"message": err.Error()})
		return
	}
	g.mu.Lock()
	if req.Title != nil {
		pr.Title = *req.Title
	}
	if req.Body != nil {
		pr.Body = *req.Body
	}
	if req.State != nil {
		pr.State = *req.State
	}
	dto := g.prDTO(pr)
	g.mu.Unlock()
	writeJSON(w, http.StatusOK, dto)
}

func (g *fakeGitHub) mergePR(w http.ResponseWriter, r *http.Request) {
	pr := g.prFromPath(w, r)
	if pr == nil {
		return
	}
	var req struct {
		MergeMethod string `json:"merge_method"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"message": err.Error()})
		return
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if pr.State != "open" {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"message": "Pull Request is not open"})
		return
	}
	pr.Merged = true
	pr.State = "closed"
	pr.MergeMethod = req.MergeMethod
	writeJSON(w, http.StatusOK, map[string]any{"merged": true, "sha": pr.HeadSHA})
}

// combinedStatus consumes the scripted CI sequence: each poll pops one state
// until only the last remains.
func (g *fakeGitHub) combinedStatus(w http.ResponseWriter, _ *http.Request) {
	state := g.nextCIState()
	var statuses []map[string]string
	switch state {
	case "failure":
		statuses = []map[string]string{{"state": "failure"}, {"state": "success"}}
	case "pending":
		statuses = []map[string]string{{"state": "pending"}}
	case "success":
		statuses = []map[string]string{{"state": "success"}}
	}
	writeJSON(w, http.StatusOK, map[string]any{"statuses": statuses})
}

func (g *fakeGitHub) checkRuns(w http.ResponseWriter, _ *http.Request) {
	// Check runs mirror the already-consumed status poll; keeping them
	// empty leaves the combined outcome to the statuses endpoint.
	writeJSON(w, http.StatusOK, map[string]any{"check_runs": []map[string]string{}})
}

func (g *fakeGitHub) nextCIState() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.ciSequence) == 0 {
		return "success"
	}
	state := g.ciSequence[0]
	if len(g.ciSequence) > 1 {
		g.ciSequence = g.ciSequence[1:]
	}
	return state
}

func (g *fakeGitHub) listCommits(w http.ResponseWriter, r *http.Request) {
	branch := r.URL.Query().Get("sha")
	g.mu.Lock()
	sha, ok := g.branches[branch]
	g.mu.Unlock()
	if !ok {
		writeJSON(w, http.StatusOK, []map[string]any{})
		return
	}
	writeJSON(w, http.StatusOK, []map[string]any{{
		"sha": sha,
		"commit": map[string]any{
			"message": "seed commit",
			"author":  map[string]any{"name": "dev", "date": time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)},
		},
	}})
}

func hasAll(have, want []string) bool {
	for _, w := range want {
		found := false
		for _, h := range have {
			if h == w {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

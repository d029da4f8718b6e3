package graph

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	graphql "github.com/graph-gophers/graphql-go"
	"github.com/graph-gophers/graphql-go/relay"

	"github.com/c0du/discord-bot-pollie/internal/model"
)

// PollQueries 只读查询，由service.PollService实现
type PollQueries interface {
	ActivePolls(ctx context.Context) ([]*model.Poll, error)
	GetPoll(ctx context.Context, id string) (*model.Poll, error)
	Results(ctx context.Context, pollID string, limit int) ([]*model.PollResult, error)
}

// GraphQLServer 管理用的只读GraphQL接口
type GraphQLServer struct {
	schema  *graphql.Schema
	handler *relay.Handler
	path    string
}

const schemaString = `
type Author {
  id: String!
  username: String!
  avatarUrl: String
}

type Poll {
  id: ID!
  guildId: String!
  channelId: String!
  messageId: String!
  question: String!
  options: [String!]!
  randomizerOptions: [String!]!
  voteMode: String!
  author: Author!
  startDate: String!
  endDate: String!
  duration: String!
  recurrence: String!
  nextRun: String
}

type OptionTally {
  option: String!
  votes: Int!
}

type PollResult {
  id: ID!
  pollId: ID!
  messageId: String!
  question: String!
  tallies: [OptionTally!]!
  closedAt: String!
}

type Query {
  # 尚未结束的投票
  activePolls: [Poll!]!

  # 按ID查询投票记录
  poll(id: ID!): Poll

  # 投票的历史结果，按关闭时间倒序
  pollResults(pollId: ID!, limit: Int): [PollResult!]!
}

schema {
  query: Query
}
`

// NewGraphQLServer 解析Schema并创建处理器，path为API端点（playground使用）
func NewGraphQLServer(queries PollQueries, path string) *GraphQLServer {
	schema := graphql.MustParseSchema(schemaString, &Resolver{queries: queries})

	return &GraphQLServer{
		schema:  schema,
		handler: &relay.Handler{Schema: schema},
		path:    path,
	}
}

// Handler GraphQL API处理器
func (s *GraphQLServer) Handler() http.Handler {
	return s.handler
}

// PlaygroundHandler GraphQL Playground页面
func (s *GraphQLServer) PlaygroundHandler() http.Handler {
	page := strings.ReplaceAll(playgroundHTML, "{{endpoint}}", s.path)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(page))
	})
}

// Exec 直接执行查询
func (s *GraphQLServer) Exec(ctx context.Context, query string, variables map[string]interface{}) *graphql.Response {
	return s.schema.Exec(ctx, query, "", variables)
}

// Resolver GraphQL解析器
type Resolver struct {
	queries PollQueries
}

func (r *Resolver) ActivePolls(ctx context.Context) ([]*PollResolver, error) {
	polls, err := r.queries.ActivePolls(ctx)
	if err != nil {
		return nil, err
	}

	resolvers := make([]*PollResolver, len(polls))
	for i, p := range polls {
		resolvers[i] = &PollResolver{poll: p}
	}
	return resolvers, nil
}

func (r *Resolver) Poll(ctx context.Context, args struct{ ID graphql.ID }) (*PollResolver, error) {
	p, err := r.queries.GetPoll(ctx, string(args.ID))
	if err != nil || p == nil {
		return nil, err
	}
	return &PollResolver{poll: p}, nil
}

func (r *Resolver) PollResults(ctx context.Context, args struct {
	PollID graphql.ID
	Limit  *int32
}) ([]*PollResultResolver, error) {
	limit := 0
	if args.Limit != nil {
		limit = int(*args.Limit)
	}

	results, err := r.queries.Results(ctx, string(args.PollID), limit)
	if err != nil {
		return nil, err
	}

	resolvers := make([]*PollResultResolver, len(results))
	for i, res := range results {
		resolvers[i] = &PollResultResolver{result: res}
	}
	return resolvers, nil
}

// PollResolver 投票记录解析器
type PollResolver struct {
	poll *model.Poll
}

func (r *PollResolver) ID() graphql.ID              { return graphql.ID(r.poll.ID) }
func (r *PollResolver) GuildID() string             { return r.poll.GuildID }
func (r *PollResolver) ChannelID() string           { return r.poll.ChannelID }
func (r *PollResolver) MessageID() string           { return r.poll.MessageID }
func (r *PollResolver) Question() string            { return r.poll.Question }
func (r *PollResolver) Options() []string           { return nonNil(r.poll.Options) }
func (r *PollResolver) RandomizerOptions() []string { return nonNil(r.poll.RandomizerOptions) }
func (r *PollResolver) VoteMode() string            { return string(r.poll.VoteMode) }
func (r *PollResolver) Author() *AuthorResolver     { return &AuthorResolver{author: r.poll.Author} }
func (r *PollResolver) StartDate() string           { return r.poll.StartDate.Format(time.RFC3339) }
func (r *PollResolver) EndDate() string             { return r.poll.EndDate.Format(time.RFC3339) }
func (r *PollResolver) Duration() string            { return r.poll.Duration }
func (r *PollResolver) Recurrence() string          { return r.poll.Recurrence }

func (r *PollResolver) NextRun() *string {
	if r.poll.NextRun == nil {
		return nil
	}
	s := r.poll.NextRun.Format(time.RFC3339)
	return &s
}

// AuthorResolver 作者解析器
type AuthorResolver struct {
	author model.Author
}

func (r *AuthorResolver) ID() string       { return r.author.ID }
func (r *AuthorResolver) Username() string { return r.author.Username }

func (r *AuthorResolver) AvatarURL() *string {
	if r.author.AvatarURL == "" {
		return nil
	}
	return &r.author.AvatarURL
}

// PollResultResolver 历史结果解析器
type PollResultResolver struct {
	result *model.PollResult
}

func (r *PollResultResolver) ID() graphql.ID     { return graphql.ID(fmt.Sprintf("%d", r.result.ID)) }
func (r *PollResultResolver) PollID() graphql.ID { return graphql.ID(r.result.PollID) }
func (r *PollResultResolver) MessageID() string  { return r.result.MessageID }
func (r *PollResultResolver) Question() string   { return r.result.Question }
func (r *PollResultResolver) ClosedAt() string   { return r.result.ClosedAt.Format(time.RFC3339) }

func (r *PollResultResolver) Tallies() []*OptionTallyResolver {
	resolvers := make([]*OptionTallyResolver, len(r.result.Tallies))
	for i := range r.result.Tallies {
		resolvers[i] = &OptionTallyResolver{tally: r.result.Tallies[i]}
	}
	return resolvers
}

// OptionTallyResolver 单个选项的计票
type OptionTallyResolver struct {
	tally model.OptionTally
}

func (r *OptionTallyResolver) Option() string { return r.tally.Option }
func (r *OptionTallyResolver) Votes() int32   { return int32(r.tally.Votes) }

func nonNil(list []string) []string {
	if list == nil {
		return []string{}
	}
	return list
}

// playgroundHTML GraphQL Playground HTML
const playgroundHTML = `
<!DOCTYPE html>
<html>
<head>
  <meta charset=utf-8/>
  <meta name="viewport" content="user-scalable=no, initial-scale=1.0, minimum-scale=1.0, maximum-scale=1.0, minimal-ui">
  <title>Pollie GraphQL Playground</title>
  <link rel="stylesheet" href="https://cdn.jsdelivr.net/npm/graphql-playground-react@1.7.22/build/static/css/index.css" />
  <link rel="shortcut icon" href="https://cdn.jsdelivr.net/npm/graphql-playground-react@1.7.22/build/favicon.png" />
  <script src="https://cdn.jsdelivr.net/npm/graphql-playground-react@1.7.22/build/static/js/middleware.js"></script>
</head>
<body>
  <div id="root">
    <style>
      body {
        background-color: rgb(23, 42, 58);
        font-family: Open Sans, sans-serif;
        height: 90vh;
      }
      #root {
        height: 100%;
        width: 100%;
        display: flex;
        align-items: center;
        justify-content: center;
      }
      .loading {
        font-size: 32px;
        font-weight: 200;
        color: rgba(255, 255, 255, .6);
        margin-left: 20px;
      }
      img {
        width: 78px;
        height: 78px;
      }
      .title {
        font-weight: 400;
      }
    </style>
    <img src='https://cdn.jsdelivr.net/npm/graphql-playground-react@1.7.22/build/logo.png' alt=''>
    <div class="loading"> 
      <span class="title">Pollie GraphQL Playground</span>
    </div>
  </div>
  <script>window.addEventListener('load', function (event) {
      GraphQLPlayground.init(document.getElementById('root'), {
        endpoint: '{{endpoint}}'
      })
    })</script>
</body>
</html>
`

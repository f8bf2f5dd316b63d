package wikidot

import (
	"context"
	"net/http"
	"testing"

	"wikisnap/lib/wiki"

	"github.com/stretchr/testify/require"
)

const threadHTML = `
<div class="post-container" id="fpc-100">
  <div class="post" id="post-100">
    <div class="title">Hola</div>
    <div class="content"><p>primer post</p></div>
    <span class="printuser"><a href="http://www.wikidot.com/user:info/alice">alice</a></span>
    <span class="odate time_1398000000">20 Apr 2014</span>
  </div>
  <div class="post-container" id="fpc-101">
    <div class="post" id="post-101">
      <div class="title">Re: Hola</div>
      <div class="content"><p>una respuesta</p></div>
      <span class="printuser"><a href="http://www.wikidot.com/user:info/bob">bob</a></span>
      <span class="odate time_1398180994">22 Apr 2014</span>
    </div>
  </div>
</div>
<div class="post-container" id="fpc-200">
  <div class="post" id="post-200">
    <div class="title">Otro hilo de conversación</div>
    <div class="content"><p>sin respuestas</p></div>
    <span class="printuser"><a href="http://www.wikidot.com/user:info/carol">carol</a></span>
    <span class="odate time_1398180994">22 Apr 2014</span>
  </div>
</div>`

func TestThreadPosts(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		require.Equal(t, "7", r.PostForm.Get("t"))
		writeModule(t, w, threadHTML)
	}))

	posts, err := client.ThreadPosts(context.Background(), 7)
	require.NoError(t, err)
	require.Len(t, posts, 3)

	require.Equal(t, int64(100), posts[0].ID)
	require.Nil(t, posts[0].Parent)
	require.Equal(t, "alice", posts[0].User)
	require.Equal(t, "Hola", posts[0].Title)
	require.Contains(t, posts[0].Content, "primer post")
	require.Equal(t, "2014-04-20 13:20:00", posts[0].Time)

	// the nested reply keeps its container's id as parent
	require.Equal(t, int64(101), posts[1].ID)
	require.NotNil(t, posts[1].Parent)
	require.Equal(t, int64(100), *posts[1].Parent)

	require.Equal(t, int64(200), posts[2].ID)
	require.Nil(t, posts[2].Parent)
}

func TestNewPost(t *testing.T) {
	var form map[string]string
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		form = map[string]string{}
		for k := range r.PostForm {
			form[k] = r.PostForm.Get(k)
		}
		writeModule(t, w, "")
	}))

	err := client.NewPost(context.Background(), 7, 100, "Re: Hola", "texto")
	require.NoError(t, err)
	require.Equal(t, "7", form["threadId"])
	require.Equal(t, "100", form["parentId"])
	require.Equal(t, "ForumAction", form["action"])
	require.Equal(t, "savePost", form["event"])

	// top-level posts omit the parent entirely
	err = client.NewPost(context.Background(), 7, 0, "Hola", "texto")
	require.NoError(t, err)
	require.NotContains(t, form, "parentId")
}

const forumStartHTML = `<table>
<tr>
  <td class="name">
    <div class="title"><a href="/forum/c-50913/discusiones">Discusiones generales</a></div>
    <div class="description">Sobre el sitio.</div>
  </td>
  <td class="threads">120</td>
</tr>
<tr>
  <td class="name">
    <div class="title"><a href="/forum/c-50914/borradores">Borradores</a></div>
    <div class="description">Trabajos en curso.</div>
  </td>
  <td class="threads">48</td>
</tr>
</table>`

func TestListCategories(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeModule(t, w, forumStartHTML)
	}))

	categories, err := client.ListCategories(context.Background())
	require.NoError(t, err)
	require.Equal(t, []wiki.Category{
		{ID: 50913, Title: "Discusiones generales", Description: "Sobre el sitio.", Size: 120},
		{ID: 50914, Title: "Borradores", Description: "Trabajos en curso.", Size: 48},
	}, categories)
}

const categoryHTML = `<table>
<tr>
  <td class="name">
    <div class="title"><a href="/forum/t-77001/presentaciones">Presentaciones</a></div>
    <div class="description">Quién es quién.</div>
  </td>
</tr>
</table>`

func TestListThreads(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		require.Equal(t, "50913", r.PostForm.Get("c"))
		writeModule(t, w, categoryHTML)
	}))

	threads, err := client.ListThreads(context.Background(), 50913)
	require.NoError(t, err)
	require.Equal(t, []wiki.Thread{
		{ID: 77001, Title: "Presentaciones", Description: "Quién es quién."},
	}, threads)
}

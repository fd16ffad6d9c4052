package transformers

// fixtures are documents shared by the property tests.
var fixtures = []string{
	"",
	"     ",
	"plain text  with   spaces",
	"<div>    <p>Test</p>    </div>",
	"<!DOCTYPE html>\n<html>\n    <head>\n        <title>Test Page</title>\n    </head>\n    <body>\n        <h1>Hello World</h1>\n    </body>\n</html>\n",
	"<div>\n    <!-- comment -->\n    <!-- ko if: a -->\n    <p> x </p>\n    <!-- /ko -->\n</div>",
	"<!--Livewire--><div><p>Content</p></div>",
	"<div><pre class=\"code\">    var x = 1;    </pre> <textarea name=\"t\">  a\n  b  </textarea></div>",
	"<script type=\"text/javascript\">\n    var html = '<script>alert(\"test\");<\\/script>';\n</script>\n<p>  after  </p>",
	"<SCRIPT>    console.log(\"test\");    </SCRIPT>  <PRE>  keep  </PRE>",
	"<button onclick=\"    go();    \">Click</button>  <script>  var x = 1;  </script>",
	"<p>This is <strong>    bold    </strong> text</p>",
	"<p>a  <  b and c  >  d</p>",
	"<div class=\"foo   bar\" title='a > b'>  x  </div>",
	"<p>  open <pre>  never\n  closed",
	"<p>unterminated <a href=\"x",
	"<!--[if IE]><p>ie</p><![endif]--> <p>x</p> <!-- trailing",
	"<textarea> <script>  literal  </script> </textarea>",
	"<style>\n  p > a { color: red; }\n</style>\n<title>  t  </title>",
	"<img src=\"a.png\" />   <br/>  <script src=\"a.js\" />  x",
}
